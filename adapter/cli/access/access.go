package access

import (
	"fmt"
	"io"
	"time"

	"github.com/felixgeelhaar/mtgate/adapter/api"
	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	"github.com/spf13/cobra"
)

// Cmd is the access command group.
var Cmd = &cobra.Command{
	Use:   "access",
	Short: "Manage subscriber entitlements",
	Long:  `Grant, revoke and inspect subscriber entitlements on the running controller.`,
}

func init() {
	Cmd.AddCommand(grantCmd)
	Cmd.AddCommand(revokeCmd)
	Cmd.AddCommand(reactivateCmd)
	Cmd.AddCommand(admitCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(listCmd)
}

func parseID(arg string) (accessDomain.SubscriberID, error) {
	id, err := accessDomain.ParseSubscriberID(arg)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid subscriber id %q", arg)
	}
	return id, nil
}

func printSubscriber(out io.Writer, s api.Subscriber) {
	state := "inactive"
	if s.Active {
		state = "active"
	}
	fmt.Fprintf(out, "Subscriber: %s", s.SubscriberID)
	if s.Username != "" {
		fmt.Fprintf(out, " (@%s)", s.Username)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Status:     %s\n", state)
	if s.ExpiresAt != nil {
		fmt.Fprintf(out, "Expires:    %s (%d days left)\n", s.ExpiresAt.Local().Format(time.RFC1123), s.DaysLeft)
	}
	fmt.Fprintf(out, "Devices:    %d\n", s.MaxConnections)
	fmt.Fprintf(out, "Link:       %s\n", s.Link)
	fmt.Fprintf(out, "Web link:   %s\n", s.WebLink)
}
