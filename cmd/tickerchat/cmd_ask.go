package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/tickerchat/internal/attachment"
	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/types"
)

var (
	askFile       string
	askModel      string
	askSubscriber bool
)

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "attach a document to the question")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model key (see 'tickerchat models')")
	askCmd.Flags().BoolVar(&askSubscriber, "subscriber", false, "treat the caller as a premium subscriber")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask a question, or start an interactive session with no arguments",
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	defer setupLogging(cfg).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	user := a.localUser(askSubscriber)
	key := types.NewConversationKey("cli", string(user.ID))
	orch, err := a.gateway.Orchestrator(key)
	if err != nil {
		return err
	}
	if askModel != "" {
		if _, err := orch.SelectModel(ctx, user, askModel); err != nil {
			return err
		}
	}

	r := newRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
	orch.Conversation().OnChange(r.update)

	sess := &askSession{app: a, user: user, key: key, orch: orch, render: r, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}

	if len(args) > 0 || askFile != "" {
		sub := conversation.Submission{Text: strings.Join(args, " ")}
		if askFile != "" {
			att, err := attachment.LoadFile(askFile)
			if err != nil {
				return err
			}
			sub.Attachment = att
		}
		return sess.turn(ctx, sub)
	}
	return sess.repl(ctx, cmd.InOrStdin())
}

type askSession struct {
	app    *app
	user   types.User
	key    types.ConversationKey
	orch   *conversation.Orchestrator
	render *renderer
	out    io.Writer
	errOut io.Writer
}

func (s *askSession) turn(ctx context.Context, sub conversation.Submission) error {
	s.render.startTurn(s.orch.Conversation().Snapshot())
	out, err := s.app.gateway.Submit(ctx, s.key, s.user, sub)
	if err != nil {
		return err
	}
	s.render.finish()

	switch out.Rejected {
	case conversation.RejectAuthRequired:
		return errors.New("no user configured: set user.id with 'tickerchat config set user.id <id>'")
	case conversation.RejectUpgradeRequired:
		_, resetAt, _ := s.app.gate.Remaining(ctx, s.user.ID)
		return fmt.Errorf("daily limit of %d questions reached, resets %s; subscribe for unlimited questions",
			s.app.gate.Limit(), resetAt.Local().Format("Mon 15:04 MST"))
	}
	if out.Err != nil {
		fmt.Fprintf(s.errOut, "(%v)\n", out.Err)
	}
	return nil
}

// repl reads one question per line. Lines starting with "/" are commands.
func (s *askSession) repl(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(s.errOut, "Model: %s. Type /help for commands.\n", s.orch.Model().Key)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.errOut, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := s.command(ctx, line); done {
				return nil
			}
			continue
		}
		if err := s.turn(ctx, conversation.Submission{Text: line}); err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *askSession) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/exit", "/quit":
		return true
	case "/model":
		m, err := s.orch.SelectModel(ctx, s.user, arg)
		if err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(s.errOut, "Now using %s (%s).\n", m.Name, m.Tier)
	case "/file":
		att, err := attachment.LoadFile(arg)
		if err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
			return false
		}
		if err := s.turn(ctx, conversation.Submission{Attachment: att}); err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}
	case "/quota":
		left, resetAt, err := s.app.gate.Remaining(ctx, s.user.ID)
		if err != nil {
			fmt.Fprintf(s.errOut, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(s.errOut, "%d of %d left, resets %s.\n", left, s.app.gate.Limit(), resetAt.Local().Format("Mon 15:04 MST"))
	default:
		fmt.Fprintln(s.errOut, "Commands: /model <key>, /file <path>, /quota, /exit")
	}
	return false
}
