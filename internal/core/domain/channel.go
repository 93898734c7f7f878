package domain

// Channel identifies where a payment entered or left the ledger.
type Channel string

const (
	ChannelQRCode        Channel = "qr_code"
	ChannelUSSD          Channel = "ussd"
	ChannelMobileMoney   Channel = "mobile_money"
	ChannelEFT           Channel = "eft"
	ChannelCard          Channel = "card"
	ChannelPhantomWallet Channel = "phantom_wallet"

	// ChannelUpgrade is internal: only the upgrade workflow writes with it.
	ChannelUpgrade Channel = "upgrade"
)

// ExternalChannels lists the channels a caller may submit payments through.
func ExternalChannels() []Channel {
	return []Channel{
		ChannelQRCode,
		ChannelUSSD,
		ChannelMobileMoney,
		ChannelEFT,
		ChannelCard,
		ChannelPhantomWallet,
	}
}

// IsExternal reports whether c is accepted from callers.
func (c Channel) IsExternal() bool {
	for _, ch := range ExternalChannels() {
		if ch == c {
			return true
		}
	}
	return false
}

// ResolvesByAccessToken reports whether the channel addresses wallets by the
// customer's dial code rather than the wallet id.
func (c Channel) ResolvesByAccessToken() bool {
	return c == ChannelUSSD || c == ChannelMobileMoney
}

// RequiresSettlement reports whether payments on c move money outside the
// ledger and must be reported to the settlement sink.
func (c Channel) RequiresSettlement() bool {
	return c.IsExternal() && c != ChannelPhantomWallet
}
