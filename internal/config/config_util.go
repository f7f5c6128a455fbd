// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package config

import (
	"net"
	"strconv"
)

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
