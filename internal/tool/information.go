package tool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"strings"

	"jarvis/internal/domain"
)

// ErrNotConfigured is returned when a capability's API key or backend is
// missing from the configuration.
var ErrNotConfigured = errors.New("not configured")

var newsCategories = OneOf{"general", "business", "entertainment", "health", "science", "sports", "technology"}

var tickerPattern = Pattern{Re: regexp.MustCompile(`^[A-Za-z0-9.^=-]{1,12}$`), Hint: "a ticker symbol like AAPL"}

func informationCapabilities(d Deps) []domain.Descriptor {
	return []domain.Descriptor{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a city.",
			Args: []domain.ArgSpec{
				{Name: "city", Kind: domain.KindString, Required: true, Description: "City name, e.g. San Francisco",
					Constraint: MaxLength(100)},
			},
			Handler: d.weather,
		},
		{
			Name:        "get_news_headlines",
			Description: "Get the top five news headlines for a topic.",
			Args: []domain.ArgSpec{
				{Name: "topic", Kind: domain.KindString, Default: "general", Description: "News category",
					Constraint: newsCategories},
			},
			Handler: d.news,
		},
		{
			Name:        "get_joke",
			Description: "Tell a programming joke.",
			Handler:     tellJoke,
		},
		{
			Name:        "get_stock_price",
			Description: "Get the latest price of a stock by ticker symbol.",
			Args: []domain.ArgSpec{
				{Name: "symbol", Kind: domain.KindString, Required: true, Description: "Ticker symbol, e.g. AAPL",
					Constraint: tickerPattern},
			},
			Handler: d.stockPrice,
		},
		{
			Name:        "search_google",
			Description: "Search the web and open the top result in the browser.",
			Args: []domain.ArgSpec{
				{Name: "query", Kind: domain.KindString, Required: true, Description: "What to search for",
					Constraint: MaxLength(500)},
			},
			Handler: d.searchGoogle,
		},
	}
}

type weatherResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
}

func (d Deps) weather(ctx context.Context, args domain.Args) (domain.Payload, error) {
	if d.Keys.Weather == "" {
		return domain.Payload{}, fmt.Errorf("weather API key is %w (WEATHER_API_KEY)", ErrNotConfigured)
	}
	city := args.String("city")
	q := url.Values{"q": {city}, "appid": {d.Keys.Weather}, "units": {"metric"}}

	var w weatherResponse
	if err := d.HTTP.GetJSON(ctx, d.Endpoints.Weather+"?"+q.Encode(), nil, &w); err != nil {
		return domain.Payload{}, fmt.Errorf("fetch weather: %w", err)
	}
	desc := "unknown conditions"
	if len(w.Weather) > 0 {
		desc = w.Weather[0].Description
	}
	return domain.Payload{
		Message: fmt.Sprintf("The weather in %s is currently %s. The temperature is %.1f°C, but it feels like %.1f°C. The humidity is %d%%.",
			city, desc, w.Main.Temp, w.Main.FeelsLike, w.Main.Humidity),
		Data: map[string]any{
			"description": desc,
			"temp_c":      w.Main.Temp,
			"feels_like":  w.Main.FeelsLike,
			"humidity":    w.Main.Humidity,
		},
	}, nil
}

type newsResponse struct {
	Articles []struct {
		Title  string `json:"title"`
		URL    string `json:"url"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (d Deps) news(ctx context.Context, args domain.Args) (domain.Payload, error) {
	if d.Keys.News == "" {
		return domain.Payload{}, fmt.Errorf("news API key is %w (NEWS_API_KEY)", ErrNotConfigured)
	}
	topic := args.String("topic")
	q := url.Values{"category": {topic}, "language": {"en"}, "pageSize": {"5"}}
	header := map[string][]string{"X-Api-Key": {d.Keys.News}}

	var n newsResponse
	if err := d.HTTP.GetJSON(ctx, d.Endpoints.News+"?"+q.Encode(), header, &n); err != nil {
		return domain.Payload{}, fmt.Errorf("fetch news: %w", err)
	}
	if len(n.Articles) == 0 {
		return domain.Payload{Message: fmt.Sprintf("I couldn't find any top headlines for %s.", topic)}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here are the top headlines for %s:", topic)
	titles := make([]string, 0, len(n.Articles))
	for i, a := range n.Articles {
		if i == 5 {
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s", i+1, a.Title)
		titles = append(titles, a.Title)
	}
	return domain.Payload{Message: sb.String(), Data: map[string]any{"headlines": titles}}, nil
}

var jokes = []string{
	"There are only 10 kinds of people in this world: those who know binary and those who don't.",
	"A SQL query walks into a bar, walks up to two tables and asks, 'Can I join you?'",
	"Why do programmers prefer dark mode? Because light attracts bugs.",
	"I would tell you a UDP joke, but you might not get it.",
	"Debugging is like being the detective in a crime movie where you are also the murderer.",
	"There are two hard things in computer science: cache invalidation, naming things, and off-by-one errors.",
	"Why did the developer go broke? Because he used up all his cache.",
	"To understand recursion, you must first understand recursion.",
	"A programmer's partner says: go to the store and get a loaf of bread, and if they have eggs, get a dozen. The programmer comes home with 12 loaves.",
	"It works on my machine. Then we'll ship your machine.",
}

func tellJoke(_ context.Context, _ domain.Args) (domain.Payload, error) {
	return domain.Payload{Message: jokes[rand.Intn(len(jokes))]}, nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (d Deps) stockPrice(ctx context.Context, args domain.Args) (domain.Payload, error) {
	symbol := strings.ToUpper(args.String("symbol"))
	endpoint := fmt.Sprintf("%s/%s?range=1d&interval=1d", d.Endpoints.Stock, url.PathEscape(symbol))

	var c chartResponse
	if err := d.HTTP.GetJSON(ctx, endpoint, nil, &c); err != nil {
		return domain.Payload{}, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	if c.Chart.Error != nil {
		return domain.Payload{}, fmt.Errorf("fetch price for %s: %s", symbol, c.Chart.Error.Description)
	}
	if len(c.Chart.Result) == 0 || c.Chart.Result[0].Meta.RegularMarketPrice == 0 {
		return domain.Payload{}, fmt.Errorf("no price data for %s", symbol)
	}
	meta := c.Chart.Result[0].Meta
	sign := "$"
	if meta.Currency != "" && meta.Currency != "USD" {
		sign = meta.Currency + " "
	}
	return domain.Payload{
		Message: fmt.Sprintf("The current price of %s is %s%.2f.", symbol, sign, meta.RegularMarketPrice),
		Data:    map[string]any{"symbol": symbol, "price": meta.RegularMarketPrice, "currency": meta.Currency},
	}, nil
}

func (d Deps) searchGoogle(ctx context.Context, args domain.Args) (domain.Payload, error) {
	if d.Searcher == nil {
		return domain.Payload{}, fmt.Errorf("web search is %w", ErrNotConfigured)
	}
	query := args.String("query")
	top, err := d.Searcher.TopResult(ctx, query)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("search: %w", err)
	}
	if err := OpenURL(ctx, d.Runner, d.GOOS, top); err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{
		Message: fmt.Sprintf("I have opened the top search result for '%s' in your browser.", query),
		Data:    map[string]any{"url": top},
	}, nil
}
