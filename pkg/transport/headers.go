package transport

// 浏览器指纹（Chrome 120 / Windows）
const (
	UserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	SecChUa         = `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`
	Accept          = "application/json, text/plain, */*"
	AcceptLanguage  = "zh-CN,zh;q=0.9,en;q=0.8,und;q=0.7,sl;q=0.6"
	SecChUaPlatform = `"Windows"`
)

// DefaultHeaders 每次请求的默认头，调用方传入的同名头会覆盖
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":             Accept,
		"Accept-Language":    AcceptLanguage,
		"User-Agent":         UserAgent,
		"Sec-Ch-Ua":          SecChUa,
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": SecChUaPlatform,
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "same-origin",
	}
}
