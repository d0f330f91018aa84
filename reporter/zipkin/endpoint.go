// Copyright 2022 The OpenZipkin Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zipkin

import (
	"net"
	"strconv"

	"github.com/openzipkin/zipkin-go/model"
)

// NewEndpoint takes the hostport and service name that represent this
// service and returns the endpoint attached to every exported span. It
// returns an endpoint without address when hostport is empty, and nil if
// hostport is malformed or does not resolve.
func NewEndpoint(serviceName, hostport string) *model.Endpoint {
	if hostport == "" {
		return &model.Endpoint{ServiceName: serviceName}
	}
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil
	}

	portInt, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil
	}

	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil
	}

	var addr4, addr16 net.IP
	for i := range addrs {
		if addr := addrs[i].To4(); addr == nil {
			if addr16 == nil {
				addr16 = addrs[i].To16() // IPv6 - 16 bytes
			}
		} else {
			if addr4 == nil {
				addr4 = addr // IPv4 - 4 bytes
			}
		}
		if addr16 != nil && addr4 != nil {
			break
		}
	}
	if addr4 == nil && addr16 == nil {
		return nil
	}

	return &model.Endpoint{
		ServiceName: serviceName,
		IPv4:        addr4,
		IPv6:        addr16,
		Port:        uint16(portInt),
	}
}
