//go:build !unix

package transport

import "net"

// listen can't tell socket, bind and listen apart here: net.ListenTCP does all of them.
func listen(addr *net.TCPAddr) (net.Listener, error) {
	ln, err := net.ListenTCP("tcp4", addr)
	if err != nil {
		return nil, NewError(SiteListen, err)
	}

	return ln, nil
}
