package pgpme

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PassphraseFunc supplies a passphrase to the engine mid-operation. The
// engine calls it synchronously on the operating goroutine; it must not
// start another operation on the owning Context. uidHint names the key
// the passphrase is for; prevWasBad is true on retry after a wrong
// passphrase. Returning an error cancels the operation (code
// ErrCanceled). hook is the opaque value installed with the callback.
type PassphraseFunc func(hook any, uidHint string, prevWasBad bool) (string, error)

// ProgressFunc reports engine progress during long operations, e.g. key
// generation. Same reentrancy rules as PassphraseFunc.
type ProgressFunc func(hook any, what string, kind, current, total int)

// FixedPassphrase returns a PassphraseFunc that always supplies pw.
func FixedPassphrase(pw string) PassphraseFunc {
	return func(any, string, bool) (string, error) {
		return pw, nil
	}
}

// TerminalPassphrase returns a PassphraseFunc that prompts on the
// controlling terminal without echo. The uid hint is appended to the
// prompt when present.
func TerminalPassphrase(prompt string) PassphraseFunc {
	return func(_ any, uidHint string, prevWasBad bool) (string, error) {
		if prevWasBad {
			fmt.Fprintln(os.Stderr, "Bad passphrase, try again.")
		}
		if uidHint != "" {
			fmt.Fprintf(os.Stderr, "%s (%s): ", prompt, uidHint)
		} else {
			fmt.Fprintf(os.Stderr, "%s: ", prompt)
		}
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(pw), nil
	}
}
