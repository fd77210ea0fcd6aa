package config

import (
	"crypto/tls"
	"net/http"
	"time"
)

// HTTPClient builds the client used for all outbound calls. TLS settings are
// carried here explicitly instead of through process-wide environment flags.
func (t TransportConfig) HTTPClient() *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConns = 100
	base.MaxIdleConnsPerHost = 10
	base.IdleConnTimeout = 90 * time.Second
	if t.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test realms
	}

	return &http.Client{
		Timeout:   t.Timeout,
		Transport: base,
	}
}
