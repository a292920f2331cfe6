package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cbcentral/bluetooth"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE peripherals",
		Long: `Scan for Bluetooth Low Energy peripherals in the vicinity and list
their identifiers, names, signal strength and advertised services.

The identifier is the one to pass to the other commands.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}
	cmd.Flags().DurationP("duration", "d", 0, "Scan duration (default scan_timeout from the configuration)")
	cmd.Flags().StringSliceP("services", "s", nil, "Only report peripherals advertising one of these service UUIDs")
	cmd.Flags().StringP("name", "n", "", "Only report peripherals whose name contains this text")
	cmd.Flags().Bool("duplicates", false, "Process every advertisement instead of the first of each peripheral")
	return cmd
}

// scanEntry is one discovered peripheral.
type scanEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	RSSI        int      `json:"rssi"`
	Connectable *bool    `json:"connectable,omitempty"`
	Services    []string `json:"services,omitempty"`
	CompanyID   *uint16  `json:"company_id,omitempty"`
	TxPower     *int     `json:"tx_power,omitempty"`
	Seen        int      `json:"seen"`
}

func (e *scanEntry) update(ev bluetooth.PeripheralDiscovered) {
	adv := ev.AdvertisementData
	e.Seen++
	e.RSSI = ev.RSSI
	if adv.LocalName != "" {
		e.Name = adv.LocalName
	} else if e.Name == "" {
		e.Name = ev.Peripheral.Name()
	}
	if c, ok := adv.IsConnectable(); ok {
		e.Connectable = &c
	}
	for _, u := range adv.ServiceUUIDs {
		s := u.ShortString()
		known := false
		for _, have := range e.Services {
			if have == s {
				known = true
				break
			}
		}
		if !known {
			e.Services = append(e.Services, s)
		}
	}
	if id, ok := adv.ManufacturerCompanyID(); ok {
		e.CompanyID = &id
	}
	if adv.TxPowerLevel != nil {
		tx := *adv.TxPowerLevel
		e.TxPower = &tx
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	services, _ := cmd.Flags().GetStringSlice("services")
	uuids, err := parseUUIDs(services)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	duplicates, _ := cmd.Flags().GetBool("duplicates")
	duration, _ := cmd.Flags().GetDuration("duration")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if duration <= 0 {
		duration = s.cfg.ScanTimeout
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if err := s.client.WaitPoweredOn(ctx); err != nil {
		return err
	}

	var mu sync.Mutex
	entries := make(map[bluetooth.UUID]*scanEntry)
	scanCtx, cancelScan := context.WithTimeout(ctx, duration)
	defer cancelScan()
	s.logger.WithField("duration", duration).Debug("scanning")
	err = s.client.Scan(scanCtx, bluetooth.ScanOptions{AllowDuplicates: duplicates, Services: uuids}, func(ev bluetooth.PeripheralDiscovered) {
		mu.Lock()
		defer mu.Unlock()
		e, ok := entries[ev.Peripheral.ID()]
		if !ok {
			e = &scanEntry{ID: ev.Peripheral.ID().String()}
			entries[ev.Peripheral.ID()] = e
		}
		e.update(ev)
	})
	// Running out of time or Ctrl+C both end a scan normally.
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}

	mu.Lock()
	list := make([]*scanEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), strings.ToLower(name)) {
			list = append(list, e)
		}
	}
	mu.Unlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].RSSI != list[j].RSSI {
			return list[i].RSSI > list[j].RSSI
		}
		return list[i].ID < list[j].ID
	})
	return printScan(cmd.OutOrStdout(), s.cfg.OutputFormat, list)
}

func printScan(out io.Writer, format string, list []*scanEntry) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No peripherals found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, headerColor.Sprint("ID\tNAME\tRSSI\tSERVICES"))
	for _, e := range list {
		name := e.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.ID,
			nameColor.Sprint(name),
			rssiColor(e.RSSI).Sprintf("%d", e.RSSI),
			strings.Join(e.Services, ","),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d peripheral(s) found.\n", len(list))
	return nil
}
