package setup

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/roelfdiedericks/clawgate/internal/auth"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("87")).
			Underline(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// ShowStatus prints the credential state for both providers.
func ShowStatus(anthropic, chatgpt *auth.Store) {
	fmt.Println()
	fmt.Println(titleStyle.Render("clawgate credentials"))
	fmt.Println()
	printProviderStatus("Anthropic", anthropic)
	printProviderStatus("ChatGPT", chatgpt)
}

func printProviderStatus(name string, store *auth.Store) {
	status := store.Status()

	fmt.Printf("%s\n", titleStyle.Render(name))
	if !status.Present {
		fmt.Printf("  %s\n\n", dimStyle.Render("not authenticated"))
		return
	}

	state := okStyle.Render("valid")
	if status.Expired {
		state = warnStyle.Render("expired")
	}
	fmt.Printf("  status:     %s\n", state)
	fmt.Printf("  token type: %s\n", status.TokenType)
	if status.AccountID != "" {
		fmt.Printf("  account:    %s\n", status.AccountID)
	}
	if status.ExpiresAt != "" {
		fmt.Printf("  expires:    %s (%s)\n", status.ExpiresAt, status.TimeRemaining)
	}
	fmt.Printf("  file:       %s\n\n", dimStyle.Render(store.Path()))
}
