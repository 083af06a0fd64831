package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/elliotttate/RenderDocMCP/internal/bridge"
	"github.com/elliotttate/RenderDocMCP/internal/cache"
)

// Cache seams, swapped in tests.
var (
	cacheGet         = cache.Get
	cacheGetMetadata = cache.GetMetadata
	cachePut         = cache.Put
)

func newCallCommand(flags *rootFlags) *cobra.Command {
	var cacheTTL time.Duration
	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Invoke a bridge method and print the JSON result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			params, canonical, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			if cacheTTL > 0 {
				if content, ok := cacheGet(method, canonical); ok {
					if age, ttl, ok := cacheGetMetadata(method, canonical); ok {
						fmt.Fprintf(cmd.ErrOrStderr(), "cached %s ago, ttl %s\n", age.Round(time.Second), ttl.Round(time.Second))
					}
					_, err := cmd.OutOrStdout().Write(content)
					return err
				}
			}

			client := bridge.New(cfg, nil)
			raw, err := client.Call(cmd.Context(), method, params)
			if err != nil {
				return err
			}
			pretty, err := prettyJSON(raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty)

			if cacheTTL > 0 {
				if err := cachePut(method, canonical, []byte(pretty+"\n"), cacheTTL); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "cache write failed: %v\n", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&cacheTTL, "cache", 0, "reuse results from the local cache for this long (0 disables)")
	return cmd
}

// parseParams decodes the optional params argument. The canonical form keys
// the cache: encoding/json sorts map keys, so equivalent objects share an
// entry regardless of spelling order.
func parseParams(rest []string) (map[string]any, json.RawMessage, error) {
	text := "{}"
	if len(rest) == 1 {
		text = rest[0]
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, nil, fmt.Errorf("invalid params JSON: %w", err)
	}
	params, ok := decoded.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("params must be a JSON object, got %s", text)
	}
	canonical, err := json.Marshal(params)
	if err != nil {
		return nil, nil, err
	}
	return params, canonical, nil
}
