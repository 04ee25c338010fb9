package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zhouzirui/negi-chat/internal/client/conversation"
	"github.com/zhouzirui/negi-chat/internal/client/transcript"
	"github.com/zhouzirui/negi-chat/internal/model/chat"
)

const replHelp = `commands: /new  /list  /use <id>  /delete <id>  /theme [dark|light]  /show  /quit`

// repl chats on the active session until /quit, EOF or cancellation.
func (a *app) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	id, tr := a.store.Active()
	printTranscript(out, a, id, tr)
	fmt.Fprintln(out, replHelp)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "you> ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.runCommand(line, reader, out)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}

		reply, err := a.turns.Send(ctx, line)
		switch {
		case errors.Is(err, conversation.ErrTurnInFlight):
			fmt.Fprintln(out, "still waiting for the last reply")
		case err != nil:
			a.logger.Debug().Err(err).Msg("send failed")
			printMessage(out, a, chat.NewMessage(chat.RoleModel, a.persona.Apology))
		default:
			printMessage(out, a, chat.NewMessage(chat.RoleModel, reply))
		}
	}
}

func (a *app) runCommand(line string, reader *bufio.Reader, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		if _, err := a.store.CreateSession(); err != nil {
			return false, err
		}
		id, tr := a.store.Active()
		printTranscript(out, a, id, tr)
	case "/list":
		printList(out, a.store.List())
	case "/use":
		if len(args) != 1 {
			return false, errors.New("usage: /use <id>")
		}
		id, err := a.store.Resolve(args[0])
		if err != nil {
			return false, err
		}
		if err := a.store.SetActive(id); err != nil {
			return false, err
		}
		_, tr := a.store.Active()
		printTranscript(out, a, id, tr)
	case "/delete":
		if len(args) != 1 {
			return false, errors.New("usage: /delete <id>")
		}
		id, err := a.store.Resolve(args[0])
		if err != nil {
			return false, err
		}
		return false, deleteChat(out, a.store, id, promptConfirm(reader, out))
	case "/theme":
		if len(args) == 1 {
			if err := a.store.SetTheme(transcript.Theme(args[0])); err != nil {
				return false, err
			}
		} else if a.store.Theme() == transcript.ThemeDark {
			if err := a.store.SetTheme(transcript.ThemeLight); err != nil {
				return false, err
			}
		} else if err := a.store.SetTheme(transcript.ThemeDark); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "theme:", a.store.Theme())
	case "/show":
		id, tr := a.store.Active()
		printTranscript(out, a, id, tr)
	default:
		fmt.Fprintln(out, replHelp)
	}
	return false, nil
}
