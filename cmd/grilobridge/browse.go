package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/grilobridge/grilobridge/internal/frontend"
	"github.com/grilobridge/grilobridge/internal/keymap"
	"github.com/grilobridge/grilobridge/internal/objectid"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// withApp loads the configuration, initializes the plugin for the duration
// of fn and releases it afterwards. ctx ends on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "yaml", "Output format (yaml or json)")
}

func printResult(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("output")
	return render(cmd.OutOrStdout(), format, v)
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q (must be yaml or json)", format)
	}
}

type sourceInfo struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Root       string            `json:"root" yaml:"root"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the available sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				infos := make([]sourceInfo, 0, a.extensions.Len())
				for _, src := range a.extensions.List() {
					info := sourceInfo{
						ID:   src.ID(),
						Name: src.Name(),
						Root: objectid.EncodeRoot(src.ID()),
					}
					if p, ok := src.(interface{ Properties() map[string]string }); ok {
						info.Properties = p.Properties()
					}
					infos = append(infos, info)
				}
				return printResult(cmd, infos)
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

type entry struct {
	ObjectID string         `json:"object_id" yaml:"object_id"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type listing struct {
	Source   string  `json:"source" yaml:"source"`
	ObjectID string  `json:"object_id" yaml:"object_id"`
	Results  []entry `json:"results" yaml:"results"`
}

func newBrowseCmd() *cobra.Command {
	var (
		keys      []string
		skip      uint
		count     uint
		recursive bool
		filter    string
		sortBy    string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "browse SOURCE [OBJECT-ID]",
		Short: "List the children of a container",
		Long:  "Browse a container of SOURCE. Without OBJECT-ID the root container is listed.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				src, err := frontend.Lookup(a.extensions, args[0])
				if err != nil {
					return err
				}

				req := types.BrowseRequest{
					ObjectID:     objectid.EncodeRoot(src.ID()),
					Recursive:    recursive,
					Filter:       filter,
					SortCriteria: sortBy,
					Keys:         keys,
					Skip:         skip,
					Count:        count,
				}
				if len(args) == 2 {
					req.ObjectID = args[1]
				}

				if timeout <= 0 {
					timeout = a.config.API.BrowseTimeout
				}
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				results, err := frontend.Browse(ctx, src, req)
				if err != nil {
					return err
				}

				out := listing{Source: src.ID(), ObjectID: req.ObjectID, Results: make([]entry, 0, len(results))}
				for _, r := range results {
					out.Results = append(out.Results, entry{ObjectID: r.ObjectID, Metadata: r.Metadata})
				}
				return printResult(cmd, out)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&keys, "keys", "k", []string{keymap.Title, keymap.MimeType}, "Metadata keys to request")
	cmd.Flags().UintVar(&skip, "skip", 0, "Number of children to skip")
	cmd.Flags().UintVar(&count, "count", 0, "Maximum number of children (0 for all)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Include descendants")
	cmd.Flags().StringVar(&filter, "filter", "", "Filter expression")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort criteria")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Browse timeout (defaults to api.browse_timeout)")
	addOutputFlag(cmd)
	return cmd
}

func newMetadataCmd() *cobra.Command {
	var (
		keys    []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "metadata OBJECT-ID",
		Short: "Show the metadata of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := objectid.Decode(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				src, err := frontend.Lookup(a.extensions, ref.Instance)
				if err != nil {
					return err
				}

				if timeout <= 0 {
					timeout = a.config.API.BrowseTimeout
				}
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				r, err := frontend.Metadata(ctx, src, args[0], keys)
				if err != nil {
					return err
				}
				return printResult(cmd, entry{ObjectID: r.ObjectID, Metadata: r.Metadata})
			})
		},
	}

	cmd.Flags().StringSliceVarP(&keys, "keys", "k", []string{types.Wildcard}, "Metadata keys to request")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Request timeout (defaults to api.browse_timeout)")
	addOutputFlag(cmd)
	return cmd
}
