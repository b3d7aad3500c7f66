package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile names the TLS ClientHello a crawl request presents.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // crypto/tls, no mimicry
	ProfileRandom  Profile = "random" // a browser preset picked per connection
)

// randomPool holds the presets ProfileRandom draws from. utls's own
// randomized hellos are not used: they can offer curves crypto/tls servers
// reject.
var randomPool = []utls.ClientHelloID{
	utls.HelloChrome_Auto,
	utls.HelloFirefox_Auto,
	utls.HelloIOS_Auto,
}

// ParseProfile maps a config string to a Profile. Empty means ProfileGo.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileGo, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("context: unknown profile %q", s)
	}
}

// Options configures the transport built by NewTransport.
type Options struct {
	Profile Profile
	// Proxy selects the outbound proxy per request. Nil means direct.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

// helloIDs returns the presets a profile may present.
func (p Profile) helloIDs() ([]utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return []utls.ClientHelloID{utls.HelloChrome_Auto}, nil
	case ProfileFirefox:
		return []utls.ClientHelloID{utls.HelloFirefox_Auto}, nil
	case ProfileSafari:
		return []utls.ClientHelloID{utls.HelloIOS_Auto}, nil
	case ProfileRandom:
		return randomPool, nil
	default:
		return nil, fmt.Errorf("context: unknown profile %q", p)
	}
}

// NewTransport returns an *http.Transport whose TLS handshakes mimic the
// requested browser. ProfileGo yields a plain clone of the default transport.
func NewTransport(opts Options) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if opts.Profile == "" || opts.Profile == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	ids, err := opts.Profile.helloIDs()
	if err != nil {
		return nil, err
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := newHTTP1Client(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}, ids[rand.IntN(len(ids))])
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("context: utls handshake failed: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}

// newHTTP1Client builds a uTLS client whose ALPN only offers http/1.1.
// http.Transport cannot speak h2 over a custom DialTLSContext conn.
func newHTTP1Client(conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) (*utls.UConn, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, fmt.Errorf("context: hello spec: %w", err)
	}

	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("context: apply preset: %w", err)
	}
	return uConn, nil
}
