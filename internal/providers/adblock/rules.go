package adblock

import "regexp"

// The engine runs a fixed, curated rule set rather than a general filter
// list syntax. Order of evaluation is cheapest first: substring domain
// checks, then compiled regexes, then the video-host heuristic.

// blockedDomains are matched case-insensitively as substrings of the full
// request URL.
var blockedDomains = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"googletagservices.com",
	"google-analytics.com",
	"googletagmanager.com",
	"adservice.google.",
	"amazon-adsystem.com",
	"adsystem.amazon",
	"scorecardresearch.com",
	"outbrain.com",
	"taboola.com",
	"criteo.com",
	"criteo.net",
	"adnxs.com",
	"rubiconproject.com",
	"pubmatic.com",
	"openx.net",
	"moatads.com",
	"quantserve.com",
	"adsafeprotected.com",
	"smartadserver.com",
	"zedo.com",
	"popads.net",
	"propellerads.com",
	"hotjar.com",
	"mixpanel.com",
	"segment.io",
	"facebook.com/tr",
	"connect.facebook.net/signals",
}

// blockedPatterns catch ad-shaped URLs on otherwise clean hosts.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[/_.-]ads?[/_.-]`),
	regexp.MustCompile(`(?i)/adserv(er|ice)?/`),
	regexp.MustCompile(`(?i)/pagead/`),
	regexp.MustCompile(`(?i)[?&]ad_type=`),
	regexp.MustCompile(`(?i)[?&]utm_source=.*[?&]ad_`),
	regexp.MustCompile(`(?i)/banner\d*\.(gif|jpe?g|png|webp)`),
	regexp.MustCompile(`(?i)\bpop(under|up)s?\b.*\.js`),
	regexp.MustCompile(`(?i)/track(ing)?[/.](js|gif|png)`),
	regexp.MustCompile(`(?i)/analytics[/.]js`),
	regexp.MustCompile(`(?i)/beacon[/.?]`),
}

// LoaderMarkers returns the ad host substrings for the in-page behavioral
// script, which neutralizes dynamic script loads matching them.
func LoaderMarkers() []string {
	out := make([]string, len(blockedDomains))
	copy(out, blockedDomains)
	return out
}

// videoHosts get an extra, platform-specific pass: player traffic shares
// the content CDN, so plain domain rules cannot tell ads from video.
var videoHosts = []string{
	"youtube.com",
	"youtube-nocookie.com",
	"googlevideo.com",
	"ytimg.com",
}

// videoAdPatterns mark ad API endpoints and query markers on video hosts.
var videoAdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/api/stats/ads`),
	regexp.MustCompile(`(?i)/pagead/`),
	regexp.MustCompile(`(?i)/ptracking`),
	regexp.MustCompile(`(?i)get_midroll_info`),
	regexp.MustCompile(`(?i)[?&]ad_break=`),
	regexp.MustCompile(`(?i)[?&]adformat=`),
	regexp.MustCompile(`(?i)[?&]adunit=`),
	regexp.MustCompile(`(?i)/qoe\?.*ad_playback`),
}
