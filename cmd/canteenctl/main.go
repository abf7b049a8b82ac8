package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/asquebay/canteen-orders/internal/app"
	"github.com/asquebay/canteen-orders/internal/config"
	"github.com/asquebay/canteen-orders/internal/lib/logger"
	"github.com/asquebay/canteen-orders/internal/model"
	"github.com/asquebay/canteen-orders/internal/transport/kafka"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "canteenctl",
		Usage: "place and manage canteen orders from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file",
				Value:   config.DefaultPath,
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "menu",
				Usage:  "print the menu",
				Action: menuCmd,
			},
			{
				Name:  "list",
				Usage: "list orders, oldest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "only orders with this status"},
				},
				Action: listCmd,
			},
			{
				Name:  "place",
				Usage: "place a new order",
				Flags: orderFlags(),
				Action: func(c *cli.Context) error {
					draft, err := draftFromFlags(c)
					if err != nil {
						return err
					}
					return withStore(c, false, func(a *app.App) error {
						id, err := a.Service.AddOrder(c.Context, draft)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "order #%d placed, total %s\n", id, draft.Total)
						return nil
					})
				},
			},
			{
				Name:      "status",
				Usage:     "set the status of an order",
				ArgsUsage: "<id> <pending|in_progress|ready>",
				Action:    statusCmd,
			},
			{
				Name:      "delete",
				Usage:     "delete an order",
				ArgsUsage: "<id>",
				Action:    deleteCmd,
			},
			{
				Name:   "watch",
				Usage:  "print the order board on every change until interrupted",
				Action: watchCmd,
			},
			{
				Name:  "publish",
				Usage: "send an order draft to the kafka intake topic",
				Flags: orderFlags(),
				Action: func(c *cli.Context) error {
					draft, err := draftFromFlags(c)
					if err != nil {
						return err
					}
					cfg, log, err := load(c)
					if err != nil {
						return err
					}
					if len(cfg.Kafka.Brokers) == 0 {
						return fmt.Errorf("kafka.brokers is not configured")
					}
					producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
					defer producer.Close()

					key, err := producer.Publish(c.Context, draft)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "draft published to %s with key %s\n", cfg.Kafka.Topic, key)
					return nil
				},
			},
		},
	}
}

func orderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "student name", Required: true},
		&cli.StringFlag{Name: "student-id", Usage: "student id", Required: true},
		&cli.StringSliceFlag{Name: "item", Usage: "menu item as id:qty, repeatable", Required: true},
		&cli.StringFlag{Name: "total", Usage: "order total; priced from the menu when omitted"},
	}
}

// load читает конфиг и создаёт логгер; логи CLI идут в stderr, чтобы не смешиваться с выводом
func load(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewWithWriter(os.Stderr, cfg.Logger.Level, cfg.Logger.Format), nil
}

// withStore поднимает хранилище на время одной команды
func withStore(c *cli.Context, notifications bool, fn func(a *app.App) error) error {
	cfg, log, err := load(c)
	if err != nil {
		return err
	}
	cfg.Notifications.Enabled = notifications

	a, err := app.New(c.Context, cfg, log)
	if err != nil {
		return err
	}
	if err := a.Start(c.Context); err != nil {
		_ = a.Close()
		return err
	}
	defer a.Close()

	return fn(a)
}

func menuCmd(c *cli.Context) error {
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tCATEGORY")
	for _, item := range model.Menu() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", item.ID, item.Name, item.Price, item.Category)
	}
	return w.Flush()
}

func listCmd(c *cli.Context) error {
	return withStore(c, false, func(a *app.App) error {
		orders := a.Service.Orders()
		if s := c.String("status"); s != "" {
			orders = a.Service.OrdersByStatus(model.Status(s))
		}
		return printOrders(c.App.Writer, orders)
	})
}

func statusCmd(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}
	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return err
	}
	status := model.Status(c.Args().Get(1))

	return withStore(c, false, func(a *app.App) error {
		if err := a.Service.UpdateOrderStatus(c.Context, id, status); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "order #%d is now %s\n", id, status)
		return nil
	})
}

func deleteCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	id, err := parseID(c.Args().First())
	if err != nil {
		return err
	}

	return withStore(c, false, func(a *app.App) error {
		if err := a.Service.DeleteOrder(c.Context, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "order #%d deleted\n", id)
		return nil
	})
}

func watchCmd(c *cli.Context) error {
	return withStore(c, true, func(a *app.App) error {
		changed := make(chan struct{}, 1)
		cancel := a.Bus.Subscribe(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer cancel()

		if err := printBoard(c.App.Writer, a); err != nil {
			return err
		}
		for {
			select {
			case <-c.Context.Done():
				return nil
			case <-changed:
				if err := printBoard(c.App.Writer, a); err != nil {
					return err
				}
			}
		}
	})
}

func printBoard(w io.Writer, a *app.App) error {
	sections := []struct {
		title  string
		orders []model.Order
	}{
		{"PENDING", a.Service.PendingOrders()},
		{"IN PROGRESS", a.Service.InProgressOrders()},
		{"READY", a.Service.ReadyOrders()},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "== %s (%d)\n", s.title, len(s.orders))
		if err := printOrders(w, s.orders); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	return nil
}

func printOrders(out io.Writer, orders []model.Order) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTUDENT\tITEMS\tTOTAL\tSTATUS\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(w, "%d\t%s (%s)\t%s\t%s\t%s\t%s\n",
			o.ID, o.StudentName, o.StudentID, formatItems(o.Items), o.Total, o.Status,
			o.CreatedAt.Local().Format("15:04:05"),
		)
	}
	return w.Flush()
}

func formatItems(items []model.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, li := range items {
		name := strconv.Itoa(li.ID)
		if item, ok := model.MenuItemByID(li.ID); ok {
			name = item.Name
		}
		parts = append(parts, fmt.Sprintf("%dx %s", li.Quantity, name))
	}
	return strings.Join(parts, ", ")
}

func draftFromFlags(c *cli.Context) (model.OrderDraft, error) {
	items, err := parseItems(c.StringSlice("item"))
	if err != nil {
		return model.OrderDraft{}, err
	}

	draft := model.OrderDraft{
		StudentName: c.String("name"),
		StudentID:   c.String("student-id"),
		Items:       items,
	}
	if raw := c.String("total"); raw != "" {
		if draft.Total, err = decimal.NewFromString(raw); err != nil {
			return model.OrderDraft{}, fmt.Errorf("invalid total %q: %w", raw, err)
		}
	} else if draft.Total, err = model.PriceItems(items); err != nil {
		return model.OrderDraft{}, err
	}
	return draft, nil
}

// parseItems разбирает позиции вида "id:qty"; без количества берётся 1
func parseItems(raw []string) ([]model.LineItem, error) {
	items := make([]model.LineItem, 0, len(raw))
	for _, r := range raw {
		idPart, qtyPart, found := strings.Cut(r, ":")
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, fmt.Errorf("invalid item %q: %w", r, err)
		}
		qty := 1
		if found {
			if qty, err = strconv.Atoi(strings.TrimSpace(qtyPart)); err != nil {
				return nil, fmt.Errorf("invalid quantity in %q: %w", r, err)
			}
		}
		items = append(items, model.LineItem{ID: id, Quantity: qty})
	}
	return items, nil
}

func parseID(raw string) (model.OrderID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return model.OrderID(id), nil
}
