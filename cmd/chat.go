package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iksnae/claw-dash/internal"
	"github.com/iksnae/claw-dash/internal/export"
	"github.com/spf13/cobra"
)

var (
	chatLimit        int
	chatFormat       string
	chatOutput       string
	chatImportFormat string
	chatImportKey    string
	chatListFormat   string
)

// chatCmd groups the chat history commands
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Inspect and move chat history",
	Long: `Chat history is kept per session in the local store and mirrored to the
dashboard server when --state-url (or [state] url) is set.

A session key looks like agent:<agent>:<name>. Omitting it uses the default
session (agent:main:main unless configured otherwise).`,
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat histories in the local store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()
		if err := a.openStorage(); err != nil {
			return err
		}

		storage := internal.NewStorage(a.kv, a.identity)
		chats, err := storage.ListChats()
		if err != nil {
			return err
		}
		if err := renderChatList(cmd.OutOrStdout(), chatListFormat, chats, time.Now()); err != nil {
			return err
		}
		if storage.HasLegacyChat() {
			internal.PrintInfo(cmd.ErrOrStderr(), "A legacy chat history is stored; it moves to the first session you open.")
		}
		return nil
	},
}

var chatShowCmd = &cobra.Command{
	Use:   "show [session-key]",
	Short: "Show the chat history of a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()
		if err := a.openStorage(); err != nil {
			internal.LogWarn("%v; trying the dashboard server only", err)
		}
		a.openBridge()

		key := a.bridge.SessionKey(firstArg(args))
		msgs := a.bridge.Load(cmd.Context(), key)
		if chatLimit > 0 && len(msgs) > chatLimit {
			msgs = msgs[len(msgs)-chatLimit:]
		}

		log := &internal.ChatLog{SessionKey: key, AgentID: a.identity.AgentFromKey(key), Messages: msgs}
		displayChat(cmd.OutOrStdout(), log)
		return nil
	},
}

var chatExportCmd = &cobra.Command{
	Use:   "export [session-key]",
	Short: "Export the chat history of a session",
	Long: `Export a session's chat history as jsonl, md, yaml or json. Without
--output the export is written to stdout; a directory gets a file named
after the session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(chatFormat)
		if err != nil {
			return err
		}

		a := newApp()
		defer a.Close()
		if err := a.openStorage(); err != nil {
			internal.LogWarn("%v; trying the dashboard server only", err)
		}
		a.openBridge()

		key := a.bridge.SessionKey(firstArg(args))
		log := &internal.ChatLog{
			SessionKey: key,
			AgentID:    a.identity.AgentFromKey(key),
			Messages:   a.bridge.Load(cmd.Context(), key),
		}

		if chatOutput == "" {
			return exporter.Export(log, cmd.OutOrStdout())
		}
		path, err := exportChat(exporter, chatFormat, log, chatOutput)
		if err != nil {
			return err
		}
		internal.PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Exported %d message(s) to %s", len(log.Messages), path))
		return nil
	},
}

var chatImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a chat history exported earlier",
	Long: `Import a jsonl, yaml or json chat export into a session. The session key
comes from --session, then from the file itself. The history replaces what
the session held and is synced to the dashboard server when configured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		format := chatImportFormat
		if format == "" {
			format = export.FormatFromPath(path)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()

		decoded, err := export.Decode(format, f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		a := newApp()
		defer a.Close()
		if err := a.openStorage(); err != nil {
			return err
		}
		a.openBridge()

		key := chatImportKey
		if key == "" && decoded.SessionKey == "" {
			key = a.bridge.SessionKey("")
		}
		log, err := internal.NewNormalizer(a.identity).NormalizeChatLog(decoded, key)
		if err != nil {
			return err
		}

		a.bridge.Persist(log.SessionKey, log.Messages)
		internal.PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Imported %d message(s) into %s", len(log.Messages), log.SessionKey))
		return nil
	},
}

var chatDeleteCmd = &cobra.Command{
	Use:   "delete <session-key>",
	Short: "Delete a session's local chat history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.Close()
		if err := a.openStorage(); err != nil {
			return err
		}
		if err := internal.NewStorage(a.kv, a.identity).DeleteChat(args[0]); err != nil {
			return err
		}
		internal.PrintSuccess(cmd.ErrOrStderr(), "Deleted local history of "+args[0])
		return nil
	},
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// exportChat writes log to output, which may be a file or a directory
func exportChat(exporter export.Exporter, format string, log *internal.ChatLog, output string) (string, error) {
	path := output
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		name := strings.NewReplacer(":", "_", "/", "_").Replace(log.SessionKey)
		path = filepath.Join(output, name+"."+exporter.Extension())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", &internal.ExportError{Format: format, Path: path, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return "", &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := exporter.Export(log, f); err != nil {
		_ = f.Close()
		return "", &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &internal.ExportError{Format: format, Path: path, Err: err}
	}
	return path, nil
}

func renderChatList(w io.Writer, format string, chats []internal.StoredChat, now time.Time) error {
	switch format {
	case "json", "yaml":
		return writeStructured(w, format, chats)
	case "", "table":
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", format)
	}

	if len(chats) == 0 {
		_, _ = fmt.Fprintln(w, headerStyle.Render("No chat history stored"))
		return nil
	}

	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d stored chat(s)", len(chats))))
	_, _ = fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, titleStyle.Render("Session")+"\t"+titleStyle.Render("Agent")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Last message")+"\t"+titleStyle.Render("Size")+"\t")
	_, _ = fmt.Fprintln(tw, strings.Repeat("─", 90))
	for _, c := range chats {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(c.SessionKey),
			c.AgentID,
			countStyle.Render(strconv.Itoa(c.MessageCount)),
			dateStyle.Render(formatAge(c.LastTimestamp, now)),
			formatBytes(c.Bytes),
		)
	}
	return tw.Flush()
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func displayChat(w io.Writer, log *internal.ChatLog) {
	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("💬 %s", log.SessionKey)))
	_, _ = fmt.Fprintln(w, dateStyle.Render(fmt.Sprintf("Agent: %s • Messages: %d", log.AgentID, len(log.Messages))))
	_, _ = fmt.Fprintln(w)

	if len(log.Messages) == 0 {
		_, _ = fmt.Fprintln(w, idStyle.Render("No messages stored for this session"))
		return
	}
	for i, msg := range log.Messages {
		displayMessage(w, i+1, msg, len(log.Messages))
	}
}

func displayMessage(w io.Writer, index int, msg internal.Message, total int) {
	var label string
	switch msg.Role {
	case "user":
		label = userMessageStyle.Render("👤 User")
	case "assistant":
		name := "Assistant"
		if msg.AgentID != "" {
			name = msg.AgentID
		}
		label = assistantMessageStyle.Render("🤖 " + name)
	default:
		label = dateStyle.Render("🔧 " + msg.Role)
	}

	header := label + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if msg.Timestamp > 0 {
		header += " " + timestampStyle.Render(time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05"))
	}
	_, _ = fmt.Fprintln(w, header)

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		_, _ = fmt.Fprintln(w, messageContentStyle.Render(idStyle.Render("(empty message)")))
		return
	}
	_, _ = fmt.Fprintln(w, messageContentStyle.Render(wrapText(content, 80)))
}

// wrapText wraps lines longer than width at word boundaries
func wrapText(text string, width int) string {
	var wrapped []string
	for _, line := range strings.Split(text, "\n") {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}
		current := ""
		for _, word := range strings.Fields(line) {
			switch {
			case current == "":
				current = word
			case len(current)+len(word)+1 > width:
				wrapped = append(wrapped, current)
				current = word
			default:
				current += " " + word
			}
		}
		if current != "" {
			wrapped = append(wrapped, current)
		}
	}
	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatListCmd, chatShowCmd, chatExportCmd, chatImportCmd, chatDeleteCmd)

	chatListCmd.Flags().StringVarP(&chatListFormat, "format", "f", "table", "Output format (table, json, yaml)")
	chatShowCmd.Flags().IntVarP(&chatLimit, "limit", "n", 0, "Show only the newest n messages")
	chatExportCmd.Flags().StringVarP(&chatFormat, "format", "f", "md", "Export format (jsonl, md, yaml, json)")
	chatExportCmd.Flags().StringVarP(&chatOutput, "output", "o", "", "Output file or directory (default stdout)")
	chatImportCmd.Flags().StringVarP(&chatImportFormat, "format", "f", "", "Input format (jsonl, yaml, json; default from extension)")
	chatImportCmd.Flags().StringVar(&chatImportKey, "session", "", "Session key to import into")
}
