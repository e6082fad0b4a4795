package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"profilesite/internal/logger"
)

// 远程抓取错误，Error() 即对外返回的原因
var (
	ErrURLRequired          = errors.New("url is required")
	ErrInvalidURL           = errors.New("invalid url format")
	ErrSchemeNotAllowed     = errors.New("only http/https allowed")
	ErrBlockedHost          = errors.New("blocked host")
	ErrFetchTimeout         = errors.New("request timeout")
	ErrFetchFailed          = errors.New("failed to fetch image")
	ErrNotImage             = errors.New("not an image")
	ErrUnsupportedImageType = errors.New("unsupported image type")
	ErrImageTooLarge        = errors.New("image too large")
	ErrImageTooLargeStream  = errors.New("image too large during download")
	ErrReadFailed           = errors.New("failed to read response")
)

var fetchErrors = []error{
	ErrURLRequired, ErrInvalidURL, ErrSchemeNotAllowed, ErrBlockedHost, ErrFetchTimeout,
	ErrFetchFailed, ErrNotImage, ErrUnsupportedImageType, ErrImageTooLarge,
	ErrImageTooLargeStream, ErrReadFailed,
}

// FetchReason 从（可能被包装的）错误中取出对外原因
func FetchReason(err error) (string, bool) {
	for _, target := range fetchErrors {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

const (
	DefaultFetchTimeout = 8 * time.Second
	MaxRemoteImageBytes = 5 * 1024 * 1024

	maxRedirects   = 5
	fetchChunkSize = 32 * 1024
)

var allowedRemoteImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// 标准库分类之外需要额外拦截的网段
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("255.255.255.255/32"),
}

// HostResolver DNS 解析，*net.Resolver 满足此接口
type HostResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// RemoteFetcher 按 URL 下载图片，拦截指向内网的请求
type RemoteFetcher struct {
	client   *http.Client
	resolver HostResolver
	timeout  time.Duration
	maxBytes int64
}

// NewRemoteFetcher 使用系统 DNS，并在建立连接时再次校验对端地址
func NewRemoteFetcher(timeout time.Duration) *RemoteFetcher {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: guardDial,
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return newRemoteFetcher(timeout, net.DefaultResolver, transport)
}

func newRemoteFetcher(timeout time.Duration, resolver HostResolver, transport http.RoundTripper) *RemoteFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	f := &RemoteFetcher{
		resolver: resolver,
		timeout:  timeout,
		maxBytes: MaxRemoteImageBytes,
	}
	f.client = &http.Client{
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// Fetch 下载远程图片，返回完整字节
func (f *RemoteFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := f.validateURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; profilesite-image-fetcher/1.0)")
	req.Header.Set("Accept", "image/webp,image/png,image/jpeg,image/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, ErrBlockedHost):
			return nil, ErrBlockedHost
		case errors.Is(err, context.DeadlineExceeded), ctx.Err() == context.DeadlineExceeded:
			return nil, ErrFetchTimeout
		default:
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP 状态码 %d", ErrFetchFailed, resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ErrNotImage
	}
	baseType, _, _ := strings.Cut(contentType, ";")
	if !allowedRemoteImageTypes[strings.TrimSpace(baseType)] {
		return nil, ErrUnsupportedImageType
	}

	if resp.ContentLength > f.maxBytes {
		return nil, ErrImageTooLarge
	}

	return f.readCapped(ctx, resp.Body)
}

// readCapped 分块读取，累计超过上限立即中止并丢弃已读内容
func (f *RemoteFetcher) readCapped(ctx context.Context, body io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, fetchChunkSize)
	var total int64

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > f.maxBytes {
				return nil, ErrImageTooLargeStream
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrFetchTimeout
			}
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
	}
}

// validateURL 校验格式、协议和目标主机
func (f *RemoteFetcher) validateURL(ctx context.Context, rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrURLRequired
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrSchemeNotAllowed
	}
	if u.Hostname() == "" {
		return nil, ErrInvalidURL
	}

	if err := f.checkHost(ctx, u.Hostname()); err != nil {
		logger.Security("blocked_host").Str("url", rawURL).Err(err).Msg("remote fetch rejected")
		return nil, ErrBlockedHost
	}
	return u, nil
}

// checkHost 任一解析结果落在内网即拒绝，解析失败同样拒绝
func (f *RemoteFetcher) checkHost(ctx context.Context, host string) error {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return fmt.Errorf("%w: %s", ErrBlockedHost, h)
	}

	if addr, err := netip.ParseAddr(h); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: %s", ErrBlockedHost, addr)
		}
		return nil
	}

	addrs, err := f.resolver.LookupNetIP(ctx, "ip", h)
	if err != nil {
		return fmt.Errorf("%w: 解析 %s 失败: %v", ErrBlockedHost, h, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s 无解析结果", ErrBlockedHost, h)
	}
	for _, addr := range addrs {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: %s -> %s", ErrBlockedHost, h, addr)
		}
	}
	return nil
}

func (f *RemoteFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: too many redirects", ErrFetchFailed)
	}
	_, err := f.validateURL(req.Context(), req.URL.String())
	return err
}

// guardDial 在连接建立前检查实际对端地址，防止 DNS 重绑定
func guardDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || isBlockedAddr(addr) {
		logger.Security("blocked_dial").Str("address", address).Msg("remote fetch dial rejected")
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return true
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
