package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/VeltarosLabs/mythcoin/pkg/api"
	"github.com/VeltarosLabs/mythcoin/pkg/types"
	"github.com/VeltarosLabs/mythcoin/pkg/version"
)

const defaultNode = "http://127.0.0.1:5000"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "version":
		runVersion(args)
	case "status":
		runStatus(args)
	case "chain":
		runChain(args)
	case "validity":
		runValidity(args)
	case "mine":
		runMine(args)
	case "tx":
		runTx(args)
	case "connect":
		runConnect(args)
	case "peers":
		runPeers(args)
	case "replace":
		runReplace(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Print(`Mythcoin CLI

Usage:
  mythcoin-cli version  [--node <url>]
  mythcoin-cli status   [--node <url>]
  mythcoin-cli chain    [--node <url>]
  mythcoin-cli validity [--node <url>]
  mythcoin-cli mine     [--node <url>]
  mythcoin-cli tx       [--node <url>] --sender <s> --receiver <r> --amount <n>
  mythcoin-cli connect  [--node <url>] <peer-url> [<peer-url> ...]
  mythcoin-cli peers    [--node <url>]
  mythcoin-cli replace  [--node <url>]

The node URL defaults to $MYTHCOIN_NODE or ` + defaultNode + `.
`)
}

// newFlags returns a flag set carrying the shared --node flag.
func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	def := strings.TrimSpace(os.Getenv("MYTHCOIN_NODE"))
	if def == "" {
		def = defaultNode
	}
	node := fs.String("node", def, "Node API base URL")
	return fs, node
}

func dial(node string, timeout time.Duration) *api.Client {
	cl, err := api.New(node, api.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		fatal(err)
	}
	return cl
}

func runVersion(args []string) {
	fs, node := newFlags("version")
	_ = fs.Parse(args)

	local := version.Get()
	pterm.Info.Printfln("CLI:  %s", local.String())

	remote, err := dial(*node, 5*time.Second).Version(context.Background())
	if err != nil {
		pterm.Warning.Printfln("Node: unreachable (%v)", err)
		return
	}
	pterm.Info.Printfln("Node: %s %s (%s, %s, %s)", version.Name, remote.Version, remote.Commit, remote.GoVersion, remote.Platform)
}

func runStatus(args []string) {
	fs, node := newFlags("status")
	_ = fs.Parse(args)

	st, err := dial(*node, 10*time.Second).Status(context.Background())
	if err != nil {
		fatal(err)
	}
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"Node address", st.NodeAddress},
		{"Started", st.StartedAt},
		{"Uptime", (time.Duration(st.UptimeSec) * time.Second).String()},
		{"Height", strconv.Itoa(st.Height)},
		{"Pending txs", strconv.Itoa(st.Pending)},
		{"Known peers", strconv.Itoa(st.KnownPeers)},
		{"Difficulty", strconv.Itoa(st.Difficulty)},
	}).Render()
}

func runChain(args []string) {
	fs, node := newFlags("chain")
	_ = fs.Parse(args)

	resp, err := dial(*node, 10*time.Second).Chain(context.Background())
	if err != nil {
		fatal(err)
	}
	pterm.DefaultSection.Printfln("Chain (%d blocks)", resp.Length)
	renderChain(resp.Chain)
}

func runValidity(args []string) {
	fs, node := newFlags("validity")
	_ = fs.Parse(args)

	resp, err := dial(*node, 10*time.Second).Validity(context.Background())
	if err != nil {
		fatal(err)
	}
	if resp.ValidityCheck {
		pterm.Success.Printfln("Chain of %d blocks is valid", len(resp.Chain))
		return
	}
	pterm.Error.Printfln("Chain of %d blocks is NOT valid", len(resp.Chain))
	os.Exit(1)
}

func runMine(args []string) {
	fs, node := newFlags("mine")
	_ = fs.Parse(args)

	spinner, _ := pterm.DefaultSpinner.Start("Searching for a proof of work ...")
	b, err := dial(*node, 5*time.Minute).Mine(context.Background())
	if err != nil {
		spinner.Fail(err.Error())
		os.Exit(1)
	}
	spinner.Success(fmt.Sprintf("Mined block %d (proof %d, %d txs)", b.Index, b.Proof, len(b.Transactions)))
	pterm.Info.Printfln("previous_hash: %s", b.PreviousHash)
}

func runTx(args []string) {
	fs, node := newFlags("tx")
	sender := fs.String("sender", "", "Sender")
	receiver := fs.String("receiver", "", "Receiver")
	amount := fs.String("amount", "", "Amount")
	_ = fs.Parse(args)

	if strings.TrimSpace(*sender) == "" || strings.TrimSpace(*receiver) == "" || strings.TrimSpace(*amount) == "" {
		fatal(fmt.Errorf("--sender, --receiver, and --amount are required"))
	}
	amt, err := strconv.ParseFloat(strings.TrimSpace(*amount), 64)
	if err != nil {
		fatal(fmt.Errorf("invalid --amount: %w", err))
	}

	resp, err := dial(*node, 10*time.Second).AddTransaction(context.Background(), *sender, *receiver, amt)
	if err != nil {
		fatal(err)
	}
	pterm.Success.Println(resp.Message)
}

func runConnect(args []string) {
	fs, node := newFlags("connect")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fatal(fmt.Errorf("at least one peer address is required"))
	}

	resp, err := dial(*node, 10*time.Second).ConnectNodes(context.Background(), fs.Args())
	if err != nil {
		fatal(err)
	}
	pterm.Success.Printfln("Node now knows %d peers", len(resp.TotalNodes))
	items := make([]pterm.BulletListItem, 0, len(resp.TotalNodes))
	for _, n := range resp.TotalNodes {
		items = append(items, pterm.BulletListItem{Level: 0, Text: n})
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()
}

func runPeers(args []string) {
	fs, node := newFlags("peers")
	_ = fs.Parse(args)

	resp, err := dial(*node, 10*time.Second).Peers(context.Background())
	if err != nil {
		fatal(err)
	}
	data := pterm.TableData{{"Address", "Source", "Last seen", "Last error"}}
	for _, p := range resp.Peers {
		data = append(data, []string{p.Addr, p.Source, p.SeenAt, p.LastError})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runReplace(args []string) {
	fs, node := newFlags("replace")
	_ = fs.Parse(args)

	spinner, _ := pterm.DefaultSpinner.Start("Reconciling with peers ...")
	resp, err := dial(*node, 2*time.Minute).ReplaceChain(context.Background())
	if err != nil {
		spinner.Fail(err.Error())
		os.Exit(1)
	}
	if resp.Replaced {
		spinner.Success(fmt.Sprintf("Chain replaced, now %d blocks", len(resp.Chain)))
	} else {
		_ = spinner.Stop()
		pterm.Info.Printfln("Chain kept, %d blocks", len(resp.Chain))
	}
}

func renderChain(chain []types.Block) {
	data := pterm.TableData{{"Index", "Timestamp", "Proof", "Previous hash", "Txs"}}
	for _, b := range chain {
		data = append(data, []string{
			strconv.FormatInt(b.Index, 10),
			b.Timestamp,
			strconv.FormatInt(b.Proof, 10),
			shortHash(b.PreviousHash),
			strconv.Itoa(len(b.Transactions)),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16] + "…"
}

func fatal(err error) {
	pterm.Error.Println("mythcoin-cli: " + err.Error())
	os.Exit(1)
}
