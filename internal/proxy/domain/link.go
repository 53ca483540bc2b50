package domain

import (
	"net/url"
	"strconv"
)

// FakeTLSPrefix marks a secret as fake-TLS for clients.
const FakeTLSPrefix = "dd"

// LinkBuilder renders client connection links for a credential.
type LinkBuilder struct {
	Server string
	Port   int
}

// NewLinkBuilder creates a link builder for the given public endpoint.
func NewLinkBuilder(server string, port int) LinkBuilder {
	return LinkBuilder{Server: server, Port: port}
}

// AppLink returns the tg:// deep link.
func (b LinkBuilder) AppLink(secret string) string {
	u := url.URL{Scheme: "tg", Host: "proxy", RawQuery: b.query(secret)}
	return u.String()
}

// WebLink returns the https://t.me/proxy form.
func (b LinkBuilder) WebLink(secret string) string {
	u := url.URL{Scheme: "https", Host: "t.me", Path: "/proxy", RawQuery: b.query(secret)}
	return u.String()
}

func (b LinkBuilder) query(secret string) string {
	// Parameter order matters to some clients, so encode by hand.
	return "server=" + url.QueryEscape(b.Server) +
		"&port=" + strconv.Itoa(b.Port) +
		"&secret=" + url.QueryEscape(FakeTLSPrefix+secret)
}
