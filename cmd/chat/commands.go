package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/negi-chat/internal/client/transcript"
	"github.com/zhouzirui/negi-chat/internal/model/chat"
)

// sidebarTitleLength matches the browser sidebar's title cut.
const sidebarTitleLength = 25

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List chats, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printList(cmd.OutOrStdout(), a.store.List())
			return nil
		},
	}
}

func newNewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new chat and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.store.CreateSession()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newUseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Switch the active chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.store.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := a.store.SetActive(id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a chat after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.store.Resolve(args[0])
			if err != nil {
				return err
			}
			confirm := func(chat.Transcript) bool { return true }
			if !yes {
				confirm = promptConfirm(bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
			}
			return deleteChat(cmd.OutOrStdout(), a.store, id, confirm)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message on the active chat and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := a.turns.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), a.persona.Apology)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

func newThemeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [dark|light]",
		Short:     "Show or set the theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(transcript.ThemeDark), string(transcript.ThemeLight)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := a.store.SetTheme(transcript.Theme(args[0])); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.store.Theme())
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a chat transcript (the active chat by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, tr := a.store.Active()
			if len(args) == 1 {
				resolved, err := a.store.Resolve(args[0])
				if err != nil {
					return err
				}
				if tr, err = a.store.Get(resolved); err != nil {
					return err
				}
				id = resolved
			}
			printTranscript(cmd.OutOrStdout(), a, id, tr)
			return nil
		},
	}
}

func deleteChat(out io.Writer, store *transcript.Store, id string, confirm func(chat.Transcript) bool) error {
	err := store.DeleteSession(id, confirm)
	if errors.Is(err, transcript.ErrDeleteNotConfirmed) {
		fmt.Fprintln(out, "not deleted")
		return nil
	}
	if err != nil {
		return err
	}
	active, _ := store.Active()
	fmt.Fprintf(out, "deleted %s, active chat is %s\n", id, active)
	return nil
}

func promptConfirm(in *bufio.Reader, out io.Writer) func(chat.Transcript) bool {
	return func(t chat.Transcript) bool {
		fmt.Fprintf(out, "Delete chat %q? [y/N] ", t.DisplayTitle())
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func printList(out io.Writer, sessions []transcript.Summary) {
	for _, s := range sessions {
		marker := " "
		if s.Active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %-28s (%d messages)\n", marker, s.ID, s.DisplayTitle(sidebarTitleLength), s.Messages)
	}
}

func printTranscript(out io.Writer, a *app, id string, t chat.Transcript) {
	fmt.Fprintf(out, "== %s (%s) ==\n", t.DisplayTitle(), id)
	for _, msg := range t.Messages {
		printMessage(out, a, msg)
	}
}

func printMessage(out io.Writer, a *app, msg chat.Message) {
	speaker := "you"
	if msg.Role == chat.RoleModel {
		speaker = a.persona.Name
	}
	fmt.Fprintf(out, "%s> %s\n", speaker, msg.Content)
}
