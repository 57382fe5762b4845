package investigate

import "strings"

// CaptchaMarkers are HTML fragments left by common CAPTCHA and challenge pages
var CaptchaMarkers = []string{
	"g-recaptcha",
	"h-captcha",
	"hcaptcha.com",
	"cf-challenge",
	"challenges.cloudflare.com",
	"px-captcha",
	"captcha-delivery.com",
	"attention required! | cloudflare",
}

// DetectCaptcha returns a "captcha:<marker>" signal per marker found in page
func DetectCaptcha(page string) []string {
	lower := strings.ToLower(page)
	var signals []string
	for _, marker := range CaptchaMarkers {
		if strings.Contains(lower, marker) {
			signals = append(signals, "captcha:"+marker)
		}
	}
	return signals
}
