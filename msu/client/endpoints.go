package client

import "fmt"

// 交易所接口路径
const (
	EndpointItem         = "/marketplace/api/marketplace/items/%s"
	EndpointExplore      = "/marketplace/api/marketplace/explore/items"
	EndpointLoginMessage = "/swapnwarp/api/web/message"
	EndpointSignIn       = "/swapnwarp/api/web/signin-wallet"

	refererMarketplace = "/marketplace"
	refererSwap        = "/swapnwarp"

	// SortingRecentlyListed 按上架时间倒序
	SortingRecentlyListed = "ExploreSorting_RECENTLY_LISTED"
)

// Action 订单提交动作
type Action string

const (
	ActionBuy      Action = "buy"      // 购买
	ActionOffer    Action = "offer"    // 出价
	ActionRegister Action = "register" // 上架
)

func itemPath(tokenID string) string {
	return fmt.Sprintf(EndpointItem, tokenID)
}

func actionPath(tokenID string, action Action) string {
	return itemPath(tokenID) + "/" + string(action)
}
