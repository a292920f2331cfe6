package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cbcentral/bluetooth"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <peripheral-id>",
		Short: "Inspect services, characteristics and descriptors of a peripheral",
		Long: `Connects to a peripheral and discovers its services, included services,
characteristics and descriptors. Readable values are read unless --no-read
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
	cmd.Flags().Bool("no-read", false, "Do not read characteristic and descriptor values")
	return cmd
}

type inspectDescriptor struct {
	UUID  string `json:"uuid"`
	Value []byte `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

type inspectCharacteristic struct {
	UUID        string              `json:"uuid"`
	Properties  string              `json:"properties"`
	Value       []byte              `json:"value,omitempty"`
	Error       string              `json:"error,omitempty"`
	Descriptors []inspectDescriptor `json:"descriptors,omitempty"`
}

type inspectService struct {
	UUID            string                  `json:"uuid"`
	Primary         bool                    `json:"primary"`
	Included        []string                `json:"included,omitempty"`
	Characteristics []inspectCharacteristic `json:"characteristics"`
}

type inspectResult struct {
	ID          string                `json:"id"`
	Name        string                `json:"name,omitempty"`
	RSSI        *int                  `json:"rssi,omitempty"`
	MaxWriteLen bluetooth.MaxWriteLen `json:"max_write_len"`
	Services    []inspectService      `json:"services"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	noRead, _ := cmd.Flags().GetBool("no-read")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()
	p, disconnect, err := s.connect(ctx, args[0])
	if err != nil {
		return err
	}
	defer disconnect()

	res, err := s.inspect(ctx, p, !noRead)
	if err != nil {
		return err
	}
	return printInspect(cmd.OutOrStdout(), s.cfg.OutputFormat, res)
}

// inspect walks the attribute tree of a connected peripheral. Failing reads
// are recorded in the result instead of aborting the walk.
func (s *session) inspect(ctx context.Context, p *bluetooth.Peripheral, read bool) (*inspectResult, error) {
	res := &inspectResult{ID: p.ID().String(), Name: p.Name()}
	if rssi, err := s.client.ReadRSSI(ctx, p); err == nil {
		res.RSSI = &rssi
	} else {
		s.logger.WithError(err).Debug("read RSSI")
	}
	mwl, err := s.client.MaxWriteLen(ctx, p)
	if err != nil {
		return nil, err
	}
	res.MaxWriteLen = mwl

	services, err := s.client.DiscoverServices(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	for _, svc := range services {
		is := inspectService{UUID: svc.UUID().String(), Primary: svc.IsPrimary()}

		included, err := s.client.DiscoverIncludedServices(ctx, svc)
		if err != nil {
			return nil, fmt.Errorf("discover included services of %s: %w", svc.UUID().ShortString(), err)
		}
		for _, inc := range included {
			is.Included = append(is.Included, inc.UUID().String())
		}

		chars, err := s.client.DiscoverCharacteristics(ctx, svc)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", svc.UUID().ShortString(), err)
		}
		for _, ch := range chars {
			ic, err := s.inspectCharacteristic(ctx, ch, read)
			if err != nil {
				return nil, err
			}
			is.Characteristics = append(is.Characteristics, ic)
		}
		res.Services = append(res.Services, is)
	}
	return res, nil
}

func (s *session) inspectCharacteristic(ctx context.Context, ch bluetooth.Characteristic, read bool) (inspectCharacteristic, error) {
	ic := inspectCharacteristic{UUID: ch.UUID().String(), Properties: ch.Properties().String()}
	if read && ch.Properties().Has(bluetooth.PropertyRead) {
		value, err := s.client.Read(ctx, ch)
		if err != nil {
			ic.Error = err.Error()
		}
		ic.Value = value
	}

	descs, err := s.client.DiscoverDescriptors(ctx, ch)
	if err != nil {
		return ic, fmt.Errorf("discover descriptors of %s: %w", ch.UUID().ShortString(), err)
	}
	for _, d := range descs {
		id := inspectDescriptor{UUID: d.UUID().String()}
		if read {
			value, err := s.client.ReadDescriptor(ctx, d)
			if err != nil {
				id.Error = err.Error()
			}
			id.Value = value
		}
		ic.Descriptors = append(ic.Descriptors, id)
	}
	return ic, nil
}

func printInspect(out io.Writer, format string, res *inspectResult) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "%s %s", headerColor.Sprint("Peripheral"), res.ID)
	if res.Name != "" {
		fmt.Fprintf(out, " %s", nameColor.Sprintf("%q", res.Name))
	}
	if res.RSSI != nil {
		fmt.Fprintf(out, " RSSI %s", rssiColor(*res.RSSI).Sprintf("%d", *res.RSSI))
	}
	fmt.Fprintf(out, "\n  max write length: %d with response, %d without\n",
		res.MaxWriteLen.WithResponse, res.MaxWriteLen.WithoutResponse)

	for _, svc := range res.Services {
		kind := "secondary"
		if svc.Primary {
			kind = "primary"
		}
		fmt.Fprintf(out, "%s %s (%s)\n", headerColor.Sprint("Service"), uuidColor.Sprint(svc.UUID), kind)
		for _, inc := range svc.Included {
			fmt.Fprintf(out, "  includes %s\n", uuidColor.Sprint(inc))
		}
		for _, ch := range svc.Characteristics {
			fmt.Fprintf(out, "  Characteristic %s [%s]\n", uuidColor.Sprint(ch.UUID), ch.Properties)
			switch {
			case ch.Error != "":
				fmt.Fprintf(out, "    value: %s\n", badColor.Sprint(ch.Error))
			case ch.Value != nil:
				fmt.Fprintf(out, "    value: %s\n", formatValue(ch.Value))
			}
			for _, d := range ch.Descriptors {
				switch {
				case d.Error != "":
					fmt.Fprintf(out, "    Descriptor %s: %s\n", uuidColor.Sprint(d.UUID), badColor.Sprint(d.Error))
				case d.Value != nil:
					fmt.Fprintf(out, "    Descriptor %s: %s\n", uuidColor.Sprint(d.UUID), formatValue(d.Value))
				default:
					fmt.Fprintf(out, "    Descriptor %s\n", uuidColor.Sprint(d.UUID))
				}
			}
		}
	}
	return nil
}
