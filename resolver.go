package perfmon

import (
	"context"
	"net"
	"net/url"
	"sort"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// hostResolver watches the remote write host for address changes.
// Configured DNS servers (plain and DNS-over-TLS) are raced against the
// system resolver; the first successful answer wins.
type hostResolver struct {
	host        string
	cfg         DNSConfig
	logger      *zap.Logger
	lastIPs     []string
	lastResolve time.Time
}

// newHostResolver returns a resolver for the endpoint host, or nil when
// the host is empty or an IP literal that can never change.
func newHostResolver(rawURL string, cfg DNSConfig, logger *zap.Logger) *hostResolver {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := u.Hostname()
	if host == "" || net.ParseIP(host) != nil {
		return nil
	}
	return &hostResolver{host: host, cfg: cfg, logger: logger}
}

// refresh re-resolves the host and reports whether its address set
// changed since the previous resolution. Resolution is throttled to the
// configured refresh interval; a throttled or failed lookup reports no
// change.
func (r *hostResolver) refresh(ctx context.Context) bool {
	if time.Since(r.lastResolve) < r.cfg.RefreshInterval {
		return false
	}
	r.lastResolve = time.Now()

	ips, err := r.resolve(ctx)
	if err != nil || len(ips) == 0 {
		if r.logger != nil {
			r.logger.Warn("DNS lookup failed", zap.String("host", r.host), zap.Error(err))
		}
		return false
	}

	sort.Strings(ips)
	changed := len(r.lastIPs) > 0 && !equalStrings(ips, r.lastIPs)
	first := len(r.lastIPs) == 0
	r.lastIPs = ips

	if changed && r.logger != nil {
		r.logger.Info("remote write host changed address",
			zap.String("host", r.host), zap.Strings("ips", ips))
	}
	return changed || first
}

// resolve races every configured resolver plus the system one.
func (r *hostResolver) resolve(ctx context.Context) ([]string, error) {
	timeout := r.cfg.Timeout
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		ips []string
		err error
	}
	ch := make(chan result, 1+len(r.cfg.Servers)+len(r.cfg.TLSServers))

	lookups := 0
	start := func(fn func() ([]string, error)) {
		lookups++
		go func() {
			ips, err := fn()
			ch <- result{ips, err}
		}()
	}

	for _, server := range r.cfg.Servers {
		server := server
		start(func() ([]string, error) { return r.query(ctx, "udp", server) })
	}
	for _, server := range r.cfg.TLSServers {
		server := server
		start(func() ([]string, error) { return r.query(ctx, "tcp-tls", server) })
	}
	start(func() ([]string, error) {
		addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", r.host)
		ips := make([]string, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, a.String())
		}
		return ips, err
	})

	var firstErr error
	for i := 0; i < lookups; i++ {
		select {
		case res := <-ch:
			if res.err == nil && len(res.ips) > 0 {
				return res.ips, nil
			}
			if firstErr == nil {
				firstErr = res.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, firstErr
}

// query asks one DNS server for the host's A records.
func (r *hostResolver) query(ctx context.Context, network, server string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(r.host), dns.TypeA)

	client := &dns.Client{Net: network, Timeout: r.cfg.Timeout}
	reply, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, err
	}
	if reply.Rcode != dns.RcodeSuccess {
		return nil, &net.DNSError{Err: dns.RcodeToString[reply.Rcode], Name: r.host, Server: server}
	}

	ips := make([]string, 0, len(reply.Answer))
	for _, answer := range reply.Answer {
		if a, ok := answer.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
