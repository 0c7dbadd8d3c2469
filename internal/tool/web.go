package tool

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"

	"jarvis/internal/domain"
)

var websites = map[string]string{
	"google":        "https://www.google.com",
	"gmail":         "https://mail.google.com",
	"perplexity":    "https://www.perplexity.ai",
	"linkedin":      "https://www.linkedin.com",
	"github":        "https://github.com",
	"youtube":       "https://www.youtube.com",
	"canva":         "https://www.canva.com",
	"stackoverflow": "https://stackoverflow.com",
	"reddit":        "https://www.reddit.com",
	"twitter":       "https://x.com",
	"facebook":      "https://www.facebook.com",
	"instagram":     "https://www.instagram.com",
	"wikipedia":     "https://www.wikipedia.org",
	"amazon":        "https://www.amazon.com",
	"netflix":       "https://www.netflix.com",
	"spotify":       "https://open.spotify.com",
	"discord":       "https://discord.com/app",
	"chatgpt":       "https://chatgpt.com",
	"claude":        "https://claude.ai",
	"figma":         "https://www.figma.com",
	"dribbble":      "https://dribbble.com",
	"pinterest":     "https://www.pinterest.com",
	"notion":        "https://www.notion.so",
	"leetcode":      "https://leetcode.com/problemset/",
}

// Websites returns the names open_website accepts, sorted.
func Websites() []string {
	names := make([]string, 0, len(websites))
	for n := range websites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func webCapabilities(d Deps) []domain.Descriptor {
	return []domain.Descriptor{
		{
			Name:        "open_website",
			Description: "Open a well-known website in a new browser tab.",
			Args: []domain.ArgSpec{
				{Name: "site_name", Kind: domain.KindString, Required: true,
					Description: "Common name of the website, e.g. " + strings.Join(Websites()[:4], ", ")},
			},
			Handler: d.openWebsite,
		},
		{
			Name:        "get_ip_address",
			Description: "Get the local and public IP addresses of this machine.",
			Handler:     d.ipAddress,
		},
		{
			Name:        "get_internet_speed",
			Description: "Run an internet speed test and report ping, download and upload speed. Takes up to a minute.",
			Handler:     d.internetSpeed,
		},
		{
			Name:        "manage_wifi",
			Description: "Turn the Wi-Fi adapter on or off.",
			Args: []domain.ArgSpec{
				{Name: "state", Kind: domain.KindString, Required: true, Description: "on or off",
					Constraint: OneOf{"on", "off"}},
			},
			Handler: d.manageWifi,
		},
	}
}

func (d Deps) openWebsite(ctx context.Context, args domain.Args) (domain.Payload, error) {
	name := args.String("site_name")
	url, ok := websites[strings.ToLower(name)]
	if !ok {
		return domain.Payload{}, fmt.Errorf("website %q is not recognized", name)
	}
	if err := OpenURL(ctx, d.Runner, d.GOOS, url); err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{
		Message: fmt.Sprintf("Opened %s in a new tab.", name),
		Data:    map[string]any{"url": url},
	}, nil
}

func (d Deps) ipAddress(ctx context.Context, _ domain.Args) (domain.Payload, error) {
	public, err := d.HTTP.GetText(ctx, d.Endpoints.IP)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("fetch public IP: %w", err)
	}
	local := localIP()
	return domain.Payload{
		Message: fmt.Sprintf("Local IP is %s, Public IP is %s.", local, public),
		Data:    map[string]any{"local": local, "public": public},
	}, nil
}

// localIP returns the address of the interface that routes outbound traffic.
// Dialing UDP sends no packets.
func localIP() string {
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.IP.String()
		}
	}
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "unknown"
}

func (d Deps) manageWifi(ctx context.Context, args domain.Args) (domain.Payload, error) {
	state := args.String("state")
	var err error
	switch d.GOOS {
	case "darwin":
		_, err = d.Runner.Run(ctx, "networksetup", "-setairportpower", "en0", state)
	case "linux":
		_, err = d.Runner.Run(ctx, "nmcli", "radio", "wifi", state)
	case "windows":
		action := "disable"
		if state == "on" {
			action = "enable"
		}
		_, err = d.Runner.Run(ctx, "netsh", "interface", "set", "interface", "Wi-Fi", action)
	default:
		err = fmt.Errorf("%w (%s)", ErrUnsupportedPlatform, d.GOOS)
	}
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{Message: fmt.Sprintf("Wi-Fi has been turned %s.", state)}, nil
}
