package signing

// EIP712 域参数
const (
	DomainName        = "Marketplace"
	DomainVersion     = "1.0"
	VerifyingContract = "0xf1c82c082af3de3614771105f01dc419c3163352"

	orderPrimaryType = "Order"
)
