package utils

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// 文章正文白名单，与编辑器能产出的标签保持一致
var postPolicy = newPostPolicy()

func newPostPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "strong", "em", "u", "ul", "ol", "li",
		"h1", "h2", "h3", "h4", "blockquote", "span")
	p.AllowAttrs("href", "target", "rel").OnElements("a")
	p.AllowAttrs("src", "alt", "width", "height", "class").OnElements("img")

	p.AllowStyles("text-align").Matching(regexp.MustCompile(`^(left|right|center|justify)$`)).Globally()
	p.AllowStyles("font-size").Matching(regexp.MustCompile(`^\d+(\.\d+)?(px|em|rem|%)$`)).Globally()
	p.AllowStyles("font-family").Matching(regexp.MustCompile(`^[\w\s"',-]+$`)).Globally()

	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)
	return p
}

// SanitizePostHTML 清洗编辑器提交的 HTML，再补充链接与图片属性
func SanitizePostHTML(input string) string {
	return EnhanceHTMLContent(postPolicy.Sanitize(input))
}

// EnhanceHTMLContent 链接统一新窗口打开，图片懒加载
func EnhanceHTMLContent(htmlStr string) string {
	if strings.TrimSpace(htmlStr) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}

	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("target", "_blank")
		s.SetAttr("rel", "noopener noreferrer")
	})

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("loading", "lazy")
	})

	// goquery 会补全 html/body，只取 body 内容
	html, _ := doc.Find("body").Html()
	if html == "" {
		html, _ = doc.Html()
	}
	return html
}

// FirstImageSrc 返回正文中第一张图片的地址，没有时返回空串
func FirstImageSrc(htmlStr string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return strings.TrimSpace(src)
}
