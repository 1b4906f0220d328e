package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/emergingrobotics/go-edma/pkg/edma"
	"github.com/emergingrobotics/go-edma/pkg/fdtcfg"
	"github.com/emergingrobotics/go-edma/pkg/regmap"
	"github.com/emergingrobotics/go-edma/pkg/tisci"
	"github.com/emergingrobotics/go-edma/testutil"
)

// Secure proxy window of the main-domain system controller on K3
// parts, and the thread pair assigned to the application cores.
const (
	secProxyTargetData = 0x4D00_0000
	secProxyRT         = 0x4A60_0000
	secProxyMapSize    = 0x80000
	secProxyHostID     = 12
	secProxyTxThread   = 13
	secProxyRxThread   = 12
)

// Version information (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "info":
		if len(args) < 1 {
			fmt.Println("Usage: edmactl info <dtb>")
			os.Exit(1)
		}
		controllerInfo(args[0])
	case "selftest":
		selfTest()
	case "firmware":
		firmwareVersion()
	case "power":
		if len(args) < 2 {
			fmt.Println("Usage: edmactl power <device-id> on|off")
			os.Exit(1)
		}
		powerDevice(args[0], args[1])
	case "version":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("EDMA Controller CLI")
	fmt.Println()
	fmt.Println("Usage: edmactl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  info <dtb>               Show EDMA controllers described by a device tree blob")
	fmt.Println("  selftest                 Run a memory-to-memory transfer against a simulated controller")
	fmt.Println("  firmware                 Query the system controller firmware revision")
	fmt.Println("  power <device-id> on|off Request a device power state from the system controller")
	fmt.Println("  version                  Print version information")
	fmt.Println("  help                     Show this help")
}

func printVersion() {
	fmt.Printf("edmactl version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Go version: %s\n", GoVersion)
}

func controllerInfo(dtbPath string) {
	nodes, err := fdtcfg.Load(dtbPath)
	if err != nil {
		fmt.Printf("Error parsing %s: %v\n", dtbPath, err)
		os.Exit(1)
	}

	if len(nodes) == 0 {
		fmt.Println("No EDMA controllers found")
		return
	}

	fmt.Printf("Found %d EDMA controller(s):\n", len(nodes))
	for i, node := range nodes {
		fmt.Printf("  [%d] %s\n", i, node.Name)
		fmt.Printf("      Base Address:   0x%08x (size 0x%x)\n", node.BaseAddr, node.RegSize)
		fmt.Printf("      Channels:       %d\n", node.Config.Channels)
		fmt.Printf("      PARAM Sets:     %d\n", node.Config.MaxParams)
		fmt.Printf("      Shadow Region:  %d\n", node.Config.RegionID)
		fmt.Printf("      Event Queue:    %d\n", node.Config.QueueNum)
		for _, res := range node.Config.Resources {
			fmt.Printf("      Owned %-12s %d..%d\n", res.Kind.String()+":", res.Start, res.End)
		}
		if node.CompIrq != 0 {
			fmt.Printf("      Completion IRQ: %d\n", node.CompIrq)
		}
	}
}

func openSysctrl() (*tisci.Client, func()) {
	target, err := regmap.Map(secProxyTargetData, secProxyMapSize)
	if err != nil {
		fmt.Printf("Error mapping secure proxy data window: %v\n", err)
		os.Exit(1)
	}
	rt, err := regmap.Map(secProxyRT, secProxyMapSize)
	if err != nil {
		target.Close()
		fmt.Printf("Error mapping secure proxy status window: %v\n", err)
		os.Exit(1)
	}

	tp := tisci.NewSecureProxy(target, rt, secProxyTxThread, secProxyRxThread)
	cleanup := func() {
		rt.Close()
		target.Close()
	}
	return tisci.NewClient(tp, secProxyHostID), cleanup
}

func firmwareVersion() {
	client, cleanup := openSysctrl()
	defer cleanup()

	v, err := client.GetRevision()
	if err != nil {
		fmt.Printf("Error querying firmware revision: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("System controller firmware: %s\n", v.Description)
	fmt.Printf("  Revision: %d\n", v.Revision)
	fmt.Printf("  ABI:      %d.%d\n", v.ABIMajor, v.ABIMinor)
}

func powerDevice(idArg, stateArg string) {
	id, err := strconv.ParseUint(idArg, 0, 32)
	if err != nil {
		fmt.Printf("Invalid device id %q: %v\n", idArg, err)
		os.Exit(1)
	}

	var state uint8
	switch stateArg {
	case "on":
		state = tisci.DeviceSwStateOn
	case "off":
		state = tisci.DeviceSwStateAutoOff
	default:
		fmt.Printf("Invalid power state %q (want on or off)\n", stateArg)
		os.Exit(1)
	}

	client, cleanup := openSysctrl()
	defer cleanup()

	if err := client.SetDeviceState(uint32(id), state); err != nil {
		fmt.Printf("Error setting device %d state: %v\n", id, err)
		os.Exit(1)
	}
	st, err := client.GetDeviceState(uint32(id))
	if err != nil {
		fmt.Printf("Error reading device %d state: %v\n", id, err)
		os.Exit(1)
	}
	fmt.Printf("Device %d: programmed=%d current=%d resets=%d\n",
		id, st.ProgrammedState, st.CurrentState, st.Resets)
}

func selfTest() {
	cfg := edma.Config{
		Name:      "edma-selftest",
		Channels:  64,
		MaxParams: 128,
		RegionID:  1,
		QueueNum:  0,
		Resources: []edma.ResourceRange{
			{Kind: edma.ResourceDMAChannel, Start: 0, End: 15},
			{Kind: edma.ResourceParam, Start: 0, End: 31},
		},
	}

	regs := testutil.NewFakeRegisterFile(cfg.RegionID)
	regs.AutoComplete = true

	dev, err := edma.Open(cfg, regs, nil)
	if err != nil {
		fmt.Printf("Error opening simulated controller: %v\n", err)
		os.Exit(1)
	}

	done := make(chan uint32, 1)
	req := edma.TransferRequest{
		Direction:   edma.DirMemToMem,
		SrcAddr:     0x8000_0000,
		DstAddr:     0x8010_0000,
		SrcDataSize: 4,
		DstDataSize: 4,
		BlockSize:   4096,
		BlockCount:  1,
		Callback: func(channel uint32, status edma.CompletionStatus, arg any) {
			done <- channel
		},
	}

	const channel = 3
	if err := dev.Configure(channel, &req); err != nil {
		fmt.Printf("Error configuring channel %d: %v\n", channel, err)
		os.Exit(1)
	}
	if err := dev.Start(channel); err != nil {
		fmt.Printf("Error starting channel %d: %v\n", channel, err)
		os.Exit(1)
	}
	status, err := dev.Status(channel)
	if err != nil {
		fmt.Printf("Error reading channel status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Channel state: busy=%v direction=%s pending=%d bytes\n",
		status.Busy, status.Direction, status.PendingLength)

	dev.ServiceCompletions()

	select {
	case ch := <-done:
		fmt.Printf("Transfer on channel %d completed\n", ch)
	default:
		fmt.Println("Transfer did not complete")
		os.Exit(1)
	}

	if err := dev.Deconfigure(channel); err != nil {
		fmt.Printf("Error releasing channel %d: %v\n", channel, err)
		os.Exit(1)
	}
	fmt.Println("Selftest passed")
}
