package pingmatrix

// Palette is the set of colors assigned, by position, to targets created
// without [WithColor].
var Palette = []string{
	"#00c8ff",
	"#ff00c3",
	"#8b5cf6",
	"#ff4d4f",
	"#ff7b00",
	"#22c55e",
	"#eab308",
	"#14b8a6",
}

var defaultTargets = []struct {
	id, url, color string
}{
	{"baidu", "https://www.baidu.com/favicon.ico?1764636922421", "#00c8ff"},
	{"wechat", "https://res.wx.qq.com/a/wx_fed/assets/res/NTI4MWU5.ico?1764636922469", "#ff00c3"},
	{"github", "https://github.com/favicon.ico?1764636922671", "#8b5cf6"},
	{"youtube", "https://www.youtube.com/favicon.ico?1764636922617", "#ff4d4f"},
	{"cloudflare", "https://www.cloudflare.com/favicon.ico?1764636922572", "#ff7b00"},
}

// DefaultTargets returns the targets probed when none are configured: the
// favicons of five widely reachable sites.
func DefaultTargets() []Target {
	out := make([]Target, len(defaultTargets))
	for i, d := range defaultTargets {
		out[i] = Target{id: d.id, name: d.id, url: d.url, color: d.color}
	}
	return out
}
