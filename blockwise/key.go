// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package blockwise

import (
	"fmt"
	"strings"
)

// TransferKey canonicalises (peer, token, URI-path, URI-query) into a single
// hashable/comparable identity, computed once from the first message of a
// transfer and reused verbatim for its lifetime (spec §3).
type TransferKey struct {
	Peer     string
	Token    string
	URIPath  string
	URIQuery string
}

// NewTransferKey builds a TransferKey from its component parts. uriPath and
// uriQuery are slices of path/query segments (as CoAP options deliver them)
// and are joined the same way regardless of call site, so two messages that
// carry the same segments always hash identically.
func NewTransferKey(peer string, token []byte, uriPath, uriQuery []string) TransferKey {
	return TransferKey{
		Peer:     peer,
		Token:    string(token),
		URIPath:  strings.Join(uriPath, "/"),
		URIQuery: strings.Join(uriQuery, "&"),
	}
}

// String renders the key for logging and for use as a go-cache map key.
func (k TransferKey) String() string {
	return fmt.Sprintf("%s|%x|/%s?%s", k.Peer, k.Token, k.URIPath, k.URIQuery)
}
