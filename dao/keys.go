package dao

import (
	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/stacks"
)

var channelKey = "channels"
var channelListKey = "channels:list"
var signatureKey = "signatures"
var pendingKey = "pending"

// BuildChannelKey orders the principals first so both argument orders name
// the same record.
func BuildChannelKey(p1 string, p2 string, asset common.Asset) string {
	a, b, _ := stacks.SortPair(p1, p2)
	return channelKey + ":" + a + ":" + b + ":" + asset.KeyPart()
}

func BuildChannelListKey(principal string) string {
	return channelListKey + ":" + principal
}

func BuildSignatureKey(channelKey string) string {
	return signatureKey + ":" + channelKey
}

func BuildPendingKey(channelKey string) string {
	return pendingKey + ":" + channelKey
}
