package libp2p

import logging "github.com/ipfs/go-log/v2"

var log = logging.Logger("hushmesh/libp2p")
