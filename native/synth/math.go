package synth

import "math/big"

var (
	precision       = mustBigInt("1000000000000000000") // 1e18 USD fixed point
	hundred         = big.NewInt(100)
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// MaxHealthFactor returns the sentinel reported for positions with no minted
// debt.
func MaxHealthFactor() *big.Int {
	return new(big.Int).Set(maxHealthFactor)
}

// Precision returns the 18-decimal fixed-point scale used for USD values and
// health factors.
func Precision() *big.Int {
	return new(big.Int).Set(precision)
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// usdFromTokens converts a native token amount into 18-decimal USD using the
// supplied integer price. Division truncates toward zero so collateral value
// is never overstated.
func usdFromTokens(amount, price *big.Int, assetDecimals, priceDecimals uint8) *big.Int {
	if amount == nil || amount.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(amount, price)
	num.Mul(num, precision)
	den := new(big.Int).Mul(pow10(assetDecimals), pow10(priceDecimals))
	return num.Quo(num, den)
}

// tokensFromUsd converts an 18-decimal USD amount into native token units,
// truncating toward zero so seized collateral is never overcounted.
func tokensFromUsd(usd, price *big.Int, assetDecimals, priceDecimals uint8) *big.Int {
	if usd == nil || usd.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(usd, pow10(assetDecimals))
	num.Mul(num, pow10(priceDecimals))
	den := new(big.Int).Mul(price, precision)
	return num.Quo(num, den)
}
