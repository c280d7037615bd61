// Package scraper fetches AliExpress product pages through a rendering
// scraping API and extracts the product images.
package scraper

import (
	"errors"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// MaxImages caps the images returned for one product.
const MaxImages = 10

// Placeholder is returned when no image could be extracted.
const Placeholder = "/placeholder.svg"

var (
	ErrInvalidURL = errors.New("invalid url")
	ErrNotAllowed = errors.New("only AliExpress product links are supported")
)

var allowedDomains = []string{"aliexpress.com", "aliexpress.us", "aliexpress.ru"}

// ValidateURL accepts http(s) links on an AliExpress domain or one of its
// subdomains (www., m., fr., a., ...).
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range allowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return u, nil
		}
	}
	return nil, ErrNotAllowed
}

var (
	ogImage = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<meta[^>]+property=["']og:image["'][^>]*content=["']([^"']+)["']`),
		regexp.MustCompile(`(?i)<meta[^>]+content=["']([^"']+)["'][^>]*property=["']og:image["']`),
	}
	imagePathList = regexp.MustCompile(`"imagePathList"\s*:\s*\[([^\]]*)\]`)
	quoted        = regexp.MustCompile(`"([^"]+)"`)
	rawCDN        = regexp.MustCompile(`(?i)(?:https?:)?//ae\d+\.alicdn\.com/kf/[^"'\s<>]+?\.(?:jpg|jpeg|png|webp)`)

	// abc.jpg_220x220.jpg, abc.jpg_640x640q90.jpg_.webp
	chainedSize = regexp.MustCompile(`(?i)(\.(?:jpg|jpeg|png|webp))_\d+x\d+(?:q\d+)?\.(?:jpg|jpeg|png|webp)(?:_\.webp)?$`)
	// abc_220x220.jpg
	plainSize = regexp.MustCompile(`(?i)_\d+x\d+(?:q\d+)?(\.(?:jpg|jpeg|png|webp))$`)
)

// NormalizeImage makes protocol-relative URLs absolute and strips size suffixes.
func NormalizeImage(src string) string {
	src = strings.TrimSpace(html.UnescapeString(src))
	src = strings.ReplaceAll(src, `\/`, `/`)
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	src = chainedSize.ReplaceAllString(src, "$1")
	return plainSize.ReplaceAllString(src, "$1")
}

// ExtractImages runs the Open Graph, embedded JSON and raw CDN strategies in
// order and returns up to MaxImages unique images.
func ExtractImages(page string) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	add := func(src string) bool {
		img := NormalizeImage(src)
		if !strings.HasPrefix(img, "http") || seen[img] {
			return len(out) < MaxImages
		}
		seen[img] = true
		out = append(out, img)
		return len(out) < MaxImages
	}

	for _, re := range ogImage {
		for _, m := range re.FindAllStringSubmatch(page, -1) {
			if !add(m[1]) {
				return out
			}
		}
	}
	for _, list := range imagePathList.FindAllStringSubmatch(page, -1) {
		for _, m := range quoted.FindAllStringSubmatch(list[1], -1) {
			if !add(m[1]) {
				return out
			}
		}
	}
	for _, m := range rawCDN.FindAllString(page, -1) {
		if !add(m) {
			return out
		}
	}
	return out
}
