// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は上流APIとサイトURLに許可するスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は設定値として受け付けないネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（クラウドメタデータIPを含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// UpstreamGuard は上流APIへの接続先を設定されたホストに限定する。
// 利用者が指定するのはユーザーIDだけだが、パスの細工やリダイレクトで
// 意図しないホストへ到達しないよう、HTTPクライアント側でも接続先を固定する。
type UpstreamGuard struct {
	host  string
	ports []int
}

// NewUpstreamGuard は baseURL のホストだけに接続を許すガードを生成する。
// baseURL は ValidateBaseURL で検証済みであること。
func NewUpstreamGuard(baseURL string) (*UpstreamGuard, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("empty host in upstream base URL: %s", baseURL)
	}

	ports := []int{80, 443}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in upstream base URL: %s", p)
		}
		ports = append(ports, n)
	}

	return &UpstreamGuard{host: u.Hostname(), ports: ports}, nil
}

// Host は接続を許可しているホスト名を返す。
func (g *UpstreamGuard) Host() string {
	return g.host
}

// NewClient は上流ホスト以外への接続をブロックするHTTPクライアントを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスも検証するため、
// プライベートIPやメタデータIPへの到達もブロックされる。
func (g *UpstreamGuard) NewClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(g.ports...).
		SetAllowedHosts(g.host).
		Build()

	return safeurl.Client(config).Client
}

// ValidateBaseURL は設定されたベースURLの安全性をDNS解決なしで静的に検証する。
// 起動時に上流APIとサイトのベースURLに対して呼び出す。
func ValidateBaseURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("base URL must not contain query or fragment: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
