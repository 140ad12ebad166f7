package metric

import "strings"

// Browser identifies the user agent a timing was measured in.
type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	OS      string `json:"os"`
}

// browserRules are checked in order, since most user agents also claim to
// be the browsers they derive from.
var browserRules = []struct {
	name  string
	token string
}{
	{"edge-chromium", "Edg/"},
	{"edge", "Edge/"},
	{"opera", "OPR/"},
	{"samsung", "SamsungBrowser/"},
	{"firefox", "Firefox/"},
	{"ios", "CriOS/"},
	{"chrome", "Chrome/"},
	{"safari", "Version/"},
	{"ie", "Trident/"},
}

var osRules = []struct {
	name  string
	token string
}{
	{"Windows 10", "Windows NT 10.0"},
	{"Windows 8.1", "Windows NT 6.3"},
	{"Windows 7", "Windows NT 6.1"},
	{"Android OS", "Android"},
	{"iOS", "iPhone OS"},
	{"iOS", "iPad"},
	{"Mac OS", "Mac OS X"},
	{"Chrome OS", "CrOS"},
	{"Linux", "Linux"},
}

// DetectBrowser reads the browser out of a user agent string. Unknown
// agents give an empty Browser.
func DetectBrowser(userAgent string) Browser {
	var b Browser
	for _, rule := range browserRules {
		i := strings.Index(userAgent, rule.token)
		if i < 0 {
			continue
		}
		if rule.name == "safari" && !strings.Contains(userAgent, "Safari/") {
			continue
		}
		b.Name = rule.name
		b.Version = versionAt(userAgent[i+len(rule.token):])
		if rule.name == "ie" {
			// Trident 7 is IE 11
			if b.Version == "7.0" {
				b.Version = "11.0"
			}
		}
		break
	}
	if b.Name == "" {
		return Browser{}
	}
	for _, rule := range osRules {
		if strings.Contains(userAgent, rule.token) {
			b.OS = rule.name
			break
		}
	}
	return b
}

func versionAt(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return r != '.' && (r < '0' || r > '9')
	})
	if end < 0 {
		return s
	}
	return s[:end]
}
