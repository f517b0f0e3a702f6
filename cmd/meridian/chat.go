package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	llmprovider "github.com/haowjy/meridian-relay"
)

var chatFlags struct {
	stream      bool
	tier        string
	system      string
	maxTokens   int
	images      []string
	temperature float64
}

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send one prompt through the fallback chain",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := chatOptions(cmd, strings.Join(args, " "))
		if err != nil {
			return err
		}

		for id, warnings := range manager.Preflight(opts) {
			for _, w := range warnings {
				fmt.Fprintf(os.Stderr, "%s: [%s] %s\n", id, w.Code, w.Message)
			}
		}

		var result *llmprovider.ChatResult
		if chatFlags.stream {
			result, err = streamChat(cmd, opts)
		} else {
			result, err = manager.Chat(cmd.Context(), opts)
			if err == nil {
				fmt.Println(result.Text)
			}
		}
		if err != nil {
			return err
		}

		printSummary(result)
		return nil
	},
}

func init() {
	chatCmd.Flags().BoolVarP(&chatFlags.stream, "stream", "s", false, "stream the response")
	for _, c := range []*cobra.Command{chatCmd, streamCmd} {
		addRequestFlags(c)
	}
}

func addRequestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&chatFlags.tier, "tier", "t", "", "model tier (flash, sonnet, opus)")
	f.StringVar(&chatFlags.system, "system", "", "system prompt")
	f.IntVar(&chatFlags.maxTokens, "max-tokens", 0, "maximum output tokens")
	f.StringSliceVar(&chatFlags.images, "image", nil, "attach an image file (repeatable)")
	f.Float64Var(&chatFlags.temperature, "temperature", 0, "sampling temperature")
}

func chatOptions(cmd *cobra.Command, prompt string) (*llmprovider.ChatOptions, error) {
	msg := llmprovider.ProviderMessage{Role: llmprovider.RoleUser, Content: prompt}
	for _, path := range chatFlags.images {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		msg.Images = append(msg.Images, llmprovider.Image{
			Data:     data,
			MimeType: mime.TypeByExtension(filepath.Ext(path)),
		})
	}

	opts := &llmprovider.ChatOptions{
		SystemPrompt:    chatFlags.system,
		Messages:        []llmprovider.ProviderMessage{msg},
		Tier:            llmprovider.Tier(chatFlags.tier),
		MaxOutputTokens: chatFlags.maxTokens,
	}
	if cmd.Flags().Changed("temperature") {
		opts.ProviderOptions = map[string]any{"temperature": chatFlags.temperature}
	}
	return opts, nil
}

func streamChat(cmd *cobra.Command, opts *llmprovider.ChatOptions) (*llmprovider.ChatResult, error) {
	stream, err := manager.ChatStream(cmd.Context(), opts)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var text strings.Builder
	result := &llmprovider.ChatResult{Provider: stream.Provider(), Model: stream.Model()}
	for chunk, err := range stream.Chunks() {
		if err != nil {
			fmt.Println()
			return nil, err
		}
		fmt.Print(chunk.Text)
		text.WriteString(chunk.Text)
		if chunk.ToolUse != nil {
			result.ToolCalls = append(result.ToolCalls, *chunk.ToolUse)
		}
		if chunk.Done {
			result.StopReason = chunk.StopReason
		}
	}
	fmt.Println()

	usage, err := stream.Usage()
	if err != nil {
		return nil, err
	}
	result.Text = text.String()
	result.InputTokens = usage.InputTokens
	result.OutputTokens = usage.OutputTokens
	return result, nil
}

func printSummary(result *llmprovider.ChatResult) {
	line := fmt.Sprintf("provider=%s model=%s stop=%s in=%d out=%d",
		result.Provider, result.Model, result.StopReason, result.InputTokens, result.OutputTokens)
	if cost, ok := llmprovider.GetTierRegistry().EstimateCost(result.Provider, result.Model, result.Usage()); ok {
		line += fmt.Sprintf(" cost=$%.6f", cost)
	}
	fmt.Fprintln(os.Stderr, line)
}

var streamCmd = &cobra.Command{
	Use:   "stream [prompt]",
	Short: "Stream one prompt through the fallback chain",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatFlags.stream = true
		return chatCmd.RunE(cmd, args)
	},
}
