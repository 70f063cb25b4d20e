package geocode

import (
	"net/http"
	"net/url"
)

// redirectTransport sends every request to target, keeping path and query,
// so the default public base URL can be exercised against a test server.
type redirectTransport struct {
	target *url.URL
	seen   []string
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.seen = append(rt.seen, req.URL.String())
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

// newRewriteClient returns a client whose requests all land on serverURL.
func newRewriteClient(serverURL string) (*http.Client, *redirectTransport) {
	u, err := url.Parse(serverURL)
	if err != nil {
		panic(err)
	}
	rt := &redirectTransport{target: u}
	return &http.Client{Transport: rt}, rt
}
