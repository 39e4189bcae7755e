package synth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"synthmint/storage"
)

const positionPrefix = "synth/position/"

// StoreState persists positions as JSON documents in a key-value database.
type StoreState struct {
	db storage.Database
}

// NewStoreState wraps the database for use as engine state.
func NewStoreState(db storage.Database) *StoreState {
	return &StoreState{db: db}
}

func positionKey(addr common.Address) []byte {
	return []byte(positionPrefix + addr.Hex())
}

// GetPosition loads the stored position for the account, or nil when the
// account has never interacted with the engine.
func (s *StoreState) GetPosition(addr common.Address) (*Position, error) {
	raw, err := s.db.Get(positionKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pos Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil, fmt.Errorf("decode position %s: %w", addr.Hex(), err)
	}
	pos.Address = addr
	pos.normalise()
	return &pos, nil
}

// PutPosition stores the position. Fully drained positions (no collateral,
// no debt) are deleted instead.
func (s *StoreState) PutPosition(addr common.Address, pos *Position) error {
	if pos == nil || (len(pos.Collateral) == 0 && (pos.DebtMinted == nil || pos.DebtMinted.Sign() == 0)) {
		return s.db.Delete(positionKey(addr))
	}
	pos.normalise()
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode position %s: %w", addr.Hex(), err)
	}
	return s.db.Put(positionKey(addr), raw)
}

// ListPositions returns every stored position.
func (s *StoreState) ListPositions() ([]*Position, error) {
	var out []*Position
	err := s.db.IteratePrefix([]byte(positionPrefix), func(key, value []byte) error {
		var pos Position
		if err := json.Unmarshal(value, &pos); err != nil {
			return fmt.Errorf("decode position %s: %w", string(key), err)
		}
		pos.normalise()
		out = append(out, &pos)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
