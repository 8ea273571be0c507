package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gokrazy/gokrazy"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	bridge "github.com/nullchannel/rcbridge"
	"github.com/nullchannel/rcbridge/internal/configsrv"
	"github.com/nullchannel/rcbridge/internal/fsblob"
	"github.com/nullchannel/rcbridge/internal/nrf24radio"
)

var (
	storeDir   string
	listenAddr string
	spiBus     string
	cePin      int
	irqPin     int
	channel    int
)

var rootCmd = &cobra.Command{
	Use:   "rcbridge",
	Short: "pairing, framing and channel-hopping bridge over an nRF24L01+ link",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "/perm/rcbridge", "directory the persisted peer record lives in")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", ":8080", "address the status/metrics HTTP surface listens on")
	rootCmd.PersistentFlags().StringVar(&spiBus, "spi-bus", "/dev/spidev0.0", "SPI bus device the radio is attached to")
	rootCmd.PersistentFlags().IntVar(&cePin, "ce-pin", 25, "BCM GPIO number of the radio's CE pin")
	rootCmd.PersistentFlags().IntVar(&irqPin, "irq-pin", 0, "BCM GPIO number of the radio's IRQ pin, 0 to poll instead")
	rootCmd.PersistentFlags().IntVar(&channel, "init-channel", bridge.InitChannel, "radio channel, 1..13, the chip is brought up on; the bridge then retunes it to its fixed initial channel")

	rootCmd.AddCommand(senderCmd, receiverCmd, resetCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func openAdapter() (*nrf24radio.Adapter, error) {
	rc := nrf24radio.RadioConfig{
		ChannelNumber: byte(70 + (channel - 1)),
		RxAddr:        nrf24radio.Address{0xE7, 0xE7, 0xE7, 0xE7, 0xE7},
	}
	dev, err := nrf24radio.New(rc, nrf24radio.HardwareBinding{
		CEPin:      cePin,
		IRQPin:     irqPin,
		SpiBusPath: spiBus,
	})
	if err != nil {
		return nil, fmt.Errorf("opening radio: %w", err)
	}
	return nrf24radio.NewAdapter(dev), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("rcbridge: shutting down")
		cancel()
	}()
	return ctx, cancel
}

var senderCmd = &cobra.Command{
	Use:   "sender",
	Short: "run as the Sender role",
	RunE: func(cmd *cobra.Command, args []string) error {
		gokrazy.WaitForClock()

		adapter, err := openAdapter()
		if err != nil {
			return err
		}
		defer adapter.Close()

		store, err := fsblob.New(storeDir)
		if err != nil {
			return err
		}

		sender, err := bridge.NewSender(adapter, store, bridge.WithLowQualityHook(func() {
			log.Warn("rcbridge: link quality dropped below threshold, requesting channel hop")
		}))
		if err != nil {
			return fmt.Errorf("constructing sender: %w", err)
		}

		cfg, err := configsrv.New(listenAddr, sender.Registry(), senderStatus{sender})
		if err != nil {
			return err
		}
		go func() {
			if err := cfg.Serve(); err != nil {
				log.WithError(err).Warn("rcbridge: config surface stopped")
			}
		}()
		defer cfg.Close()

		ctx, cancel := signalContext()
		defer cancel()

		log.WithField("state", sender.State()).Info("rcbridge: sender running")

		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		heartbeat := time.NewTicker(2 * time.Second)
		defer heartbeat.Stop()
		counter := 0

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				adapter.Pump()
				pollCtx, pollCancel := context.WithTimeout(ctx, 2*time.Millisecond)
				sender.Tick(pollCtx, cfg)
				pollCancel()
			case <-heartbeat.C:
				if sender.State() != bridge.Paired {
					continue
				}
				counter++
				payload := []byte(fmt.Sprintf("heartbeat %d", counter))
				if err := sender.Send(payload); err != nil {
					log.WithError(err).Debug("rcbridge: heartbeat send rejected")
				}
			}
		}
	},
}

var receiverCmd = &cobra.Command{
	Use:   "receiver",
	Short: "run as the Receiver role",
	RunE: func(cmd *cobra.Command, args []string) error {
		gokrazy.WaitForClock()

		adapter, err := openAdapter()
		if err != nil {
			return err
		}
		defer adapter.Close()

		store, err := fsblob.New(storeDir)
		if err != nil {
			return err
		}

		receiver, err := bridge.NewReceiver(adapter, store, bridge.WithOnData(func(payload []byte) {
			log.WithField("bytes", len(payload)).Info("rcbridge: data received")
		}))
		if err != nil {
			return fmt.Errorf("constructing receiver: %w", err)
		}

		cfg, err := configsrv.New(listenAddr, receiver.Registry(), receiverStatus{receiver})
		if err != nil {
			return err
		}
		go func() {
			if err := cfg.Serve(); err != nil {
				log.WithError(err).Warn("rcbridge: config surface stopped")
			}
		}()
		defer cfg.Close()

		ctx, cancel := signalContext()
		defer cancel()

		log.WithField("state", receiver.State()).Info("rcbridge: receiver running")

		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				adapter.Pump()
				pollCtx, pollCancel := context.WithTimeout(ctx, 2*time.Millisecond)
				receiver.Tick(pollCtx, cfg)
				pollCancel()
			}
		}
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "forget the persisted peer so the next boot re-pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := fsblob.New(storeDir)
		if err != nil {
			return err
		}
		if err := store.Remove("peer"); err != nil {
			return fmt.Errorf("resetting: %w", err)
		}
		log.Info("rcbridge: persisted peer removed")
		return nil
	},
}

type senderStatus struct{ s *bridge.Sender }

func (ss senderStatus) Status() configsrv.Status {
	return configsrv.Status{
		Role:        "sender",
		State:       ss.s.State().String(),
		LinkQuality: ss.s.LinkQuality(),
	}
}

type receiverStatus struct{ r *bridge.Receiver }

func (rs receiverStatus) Status() configsrv.Status {
	return configsrv.Status{
		Role:    "receiver",
		State:   rs.r.State().String(),
		Channel: rs.r.Channel(),
	}
}
