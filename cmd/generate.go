package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/place2dxf/internal/model"
)

var (
	generatePlace  string
	generateBuffer float64
	generateOut    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one drawing and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateOut != "" {
			cfg.Server.OutputDir = generateOut
		}

		env, err := initPipeline(cmd.Context(), cfg, "generate")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(cmd.Context(), model.PlaceQuery{Place: generatePlace, Buffer: generateBuffer})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "encode result")
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generatePlace, "place", "", "place name to geocode")
	generateCmd.Flags().Float64Var(&generateBuffer, "buffer", 0, "half-side of the area in metres (default from config)")
	generateCmd.Flags().StringVar(&generateOut, "out", "", "output directory (default from config)")
	_ = generateCmd.MarkFlagRequired("place")
	rootCmd.AddCommand(generateCmd)
}
