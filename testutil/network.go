// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package testutil

import (
	"math/rand"
	"net"
	"strconv"
	"time"
)

// RandomPort returns a free local port, -1 if none is found
func RandomPort() int {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	portStart, portEnd := r.Intn(2000)+30000, 50000
	for port := portStart; port < portEnd; port++ {
		if portIsFree(port) {
			return port
		}
	}
	return -1
}

func portIsFree(port int) bool {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
