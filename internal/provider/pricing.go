package provider

// price is USD per 1K tokens.
type price struct {
	input  float64
	output float64
}

// pricing is keyed by "provider:model". Estimates only.
var pricing = map[string]price{
	"openai:gpt-4o":        {2.50, 10.00},
	"openai:gpt-4o-mini":   {0.15, 0.60},
	"openai:gpt-4-turbo":   {10.00, 30.00},
	"openai:gpt-4":         {30.00, 60.00},
	"openai:gpt-3.5-turbo": {0.50, 1.50},

	"anthropic:claude-opus-4-20250514":     {15.00, 75.00},
	"anthropic:claude-sonnet-4-20250514":   {3.00, 15.00},
	"anthropic:claude-sonnet-3-5-20241022": {3.00, 15.00},
	"anthropic:claude-sonnet-3-5-20240620": {3.00, 15.00},
	"anthropic:claude-haiku-3-5-20241022":  {0.80, 4.00},

	"google:gemini-2.0-flash-exp": {0.00, 0.00},
	"google:gemini-1.5-pro":       {1.25, 5.00},
	"google:gemini-1.5-flash":     {0.075, 0.30},
	"google:gemini-pro":           {0.50, 1.50},

	"grok:grok-beta":        {5.00, 15.00},
	"grok:grok-vision-beta": {5.00, 15.00},
}

// fallbackPricing applies to unknown models of a known provider.
var fallbackPricing = map[string]price{
	OpenAI:    {5.00, 15.00},
	Anthropic: {3.00, 15.00},
	Google:    {0.50, 1.50},
	Grok:      {5.00, 15.00},
	Ollama:    {0, 0},
}

// EstimateCost returns the linear cost estimate for a call, rounded to six decimals.
func EstimateCost(providerName, model string, inputTokens, outputTokens int) float64 {
	p, ok := pricing[providerName+":"+model]
	if !ok {
		p = fallbackPricing[providerName]
	}
	cost := float64(inputTokens)/1000*p.input + float64(outputTokens)/1000*p.output
	return roundCost(cost)
}
