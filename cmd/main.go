package main

import (
	"fmt"
	"io"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	pcap "github.com/packetcap/go-pcapwire"
	"github.com/packetcap/go-pcapwire/ifaces"
	"github.com/packetcap/go-pcapwire/internal/config"
	"github.com/packetcap/go-pcapwire/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		debug      bool
		cfg        *config.Config
	)
	rootCmd := &cobra.Command{
		Use:          "pcapwire",
		Short:        "Inspect network interfaces and capture file headers",
		Long:         `List the addresses configured on this host's interfaces, and read, write or normalize the global header of pcap capture files`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if debug {
				c.Log.Level = "debug"
			}
			if err := logging.Setup(cmd.ErrOrStderr(), c.Log.Level, c.Log.Format); err != nil {
				return err
			}
			cfg = c
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file; PCAPWIRE_* environment variables override it")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print lots of debugging messages")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format, text or yaml")

	conf := func() *config.Config { return cfg }
	rootCmd.AddCommand(newInterfacesCmd(conf), newHeaderCmd(conf))
	return rootCmd
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	switch format {
	case "text", "yaml":
		return format, nil
	}
	return "", fmt.Errorf("unknown output format %q", format)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

type interfaceView struct {
	Name         string   `yaml:"name"`
	Index        int      `yaml:"index"`
	Flags        []string `yaml:"flags,flow"`
	HardwareAddr string   `yaml:"hardware_addr,omitempty"`
	Address      string   `yaml:"address,omitempty"`
	Netmask      string   `yaml:"netmask,omitempty"`
	Broadcast    string   `yaml:"broadcast,omitempty"`
}

func newInterfaceView(info ifaces.InterfaceInfo) interfaceView {
	v := interfaceView{
		Name:  info.Name,
		Index: info.Index,
		Flags: flagNames(info),
	}
	if len(info.HardwareAddr) > 0 {
		v.HardwareAddr = info.HardwareAddr.String()
	}
	if info.Address != nil {
		v.Address = info.Address.String()
	}
	if info.Netmask != nil {
		v.Netmask = net.IP(info.Netmask).String()
	}
	if info.Broadcast != nil {
		v.Broadcast = info.Broadcast.String()
	}
	return v
}

func flagNames(info ifaces.InterfaceInfo) []string {
	if info.Flags == 0 {
		return []string{}
	}
	var names []string
	for i := 0; i < 32; i++ {
		if f := info.Flags & (1 << uint(i)); f != 0 {
			names = append(names, f.String())
		}
	}
	return names
}

func newInterfacesCmd(conf func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List the addresses of every network interface",
		Long:  `List the addresses of every network interface, one line per entry of the OS interface table. Entries that cannot be read are reported as warnings and skipped.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			opts := ifaces.DefaultOptions()
			if exclude := conf().Interfaces.ExcludeLinkLayer; exclude != nil {
				opts.ExcludeLinkLayer = *exclude
			}
			log.WithField("exclude_link_layer", opts.ExcludeLinkLayer).Debug("listing interfaces")
			list, err := ifaces.NewEnumerator(ifaces.NativeSource(), opts).List()
			if err != nil {
				return err
			}

			views := make([]interfaceView, 0, len(list))
			for _, info := range list {
				views = append(views, newInterfaceView(info))
			}
			out := cmd.OutOrStdout()
			if format == "yaml" {
				return writeYAML(out, views)
			}
			for _, v := range views {
				addr, mask := v.Address, v.Netmask
				if addr == "" {
					addr = "link " + v.HardwareAddr
				}
				fmt.Fprintf(out, "%-3d %-16s %-40s %-24s %v\n", v.Index, v.Name, addr, mask, v.Flags)
			}
			return nil
		},
	}
	cmd.Flags().Bool(config.IncludeLinkLayerFlag, false, "keep link-layer entries; the default varies by platform")
	return cmd
}

type headerView struct {
	File             string `yaml:"file"`
	ByteSwapped      bool   `yaml:"byte_swapped"`
	Version          string `yaml:"version"`
	TimezoneOffset   int32  `yaml:"thiszone"`
	AccuracyFigures  uint32 `yaml:"sigfigs"`
	MaxCaptureLength uint32 `yaml:"snaplen"`
	LinkType         uint32 `yaml:"link_type"`
	LinkTypeName     string `yaml:"link_type_name"`
}

func printHeader(cmd *cobra.Command, name string, hdr pcap.GlobalHeader) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if format == "yaml" {
		return writeYAML(out, headerView{
			File:             name,
			ByteSwapped:      hdr.ByteSwapped,
			Version:          fmt.Sprintf("%d.%d", hdr.VersionMajor, hdr.VersionMinor),
			TimezoneOffset:   hdr.TimezoneOffset,
			AccuracyFigures:  hdr.AccuracyFigures,
			MaxCaptureLength: hdr.MaxCaptureLength,
			LinkType:         hdr.LinkType,
			LinkTypeName:     hdr.LinkLayer().String(),
		})
	}
	fmt.Fprintf(out, "%s: %s\n", name, hdr)
	return nil
}

func newHeaderCmd(conf func() *config.Config) *cobra.Command {
	storage := pcap.NewOSStorage()
	headerCmd := &cobra.Command{
		Use:   "header",
		Short: "Read and write capture file global headers",
	}

	showCmd := &cobra.Command{
		Use:   "show FILE...",
		Short: "Print the global header of each capture file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := pcap.NewFile(storage)
			for _, name := range args {
				hdr, err := f.Load(name)
				if err != nil {
					return err
				}
				if err := printHeader(cmd, name, hdr); err != nil {
					return err
				}
			}
			return nil
		},
	}

	writeCmd := &cobra.Command{
		Use:   "write FILE",
		Short: "Write a capture file holding only a global header",
		Long:  `Write a capture file holding only a global header, replacing FILE if it exists. Values come from flags, then PCAPWIRE_HEADER_* environment variables, then the config file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := conf().Header
			hdr := pcap.NewGlobalHeader(c.Snaplen, c.LinkType)
			hdr.TimezoneOffset = c.Thiszone
			if err := pcap.NewFile(storage).Save(args[0], hdr); err != nil {
				return err
			}
			return printHeader(cmd, args[0], hdr)
		},
	}
	writeCmd.Flags().Uint32("snaplen", pcap.DefaultSnaplen, "maximum captured length per packet")
	writeCmd.Flags().Uint32("linktype", pcap.LinkTypeEthernet, "link type, see pcap-linktype(7)")
	writeCmd.Flags().Int32("thiszone", 0, "timezone offset from UTC in seconds")

	normalizeCmd := &cobra.Command{
		Use:   "normalize FILE",
		Short: "Rewrite the global header of a header-only capture file in little-endian order",
		Long:  `Rewrite the global header of a header-only capture file in little-endian order. Files that also hold packet records are refused, since only the header would be written back.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := pcap.NewFile(storage)
			hdr, err := f.Load(args[0])
			if err != nil {
				return err
			}
			fi, err := storage.Fs().Stat(args[0])
			if err != nil {
				return err
			}
			if fi.Size() > pcap.HeaderSize {
				return fmt.Errorf("%s holds %d bytes of packet records, refusing to drop them", args[0], fi.Size()-pcap.HeaderSize)
			}
			if !hdr.ByteSwapped {
				log.WithField("capture", args[0]).Info("already in canonical byte order")
			}
			if err := f.Save(args[0], hdr); err != nil {
				return err
			}
			hdr.ByteSwapped = false
			return printHeader(cmd, args[0], hdr)
		},
	}

	headerCmd.AddCommand(showCmd, writeCmd, normalizeCmd)
	return headerCmd
}
