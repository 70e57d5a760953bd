package main

import (
	"fmt"
	"strconv"

	"github.com/wondertwin-ai/storefront/internal/cart"
	"github.com/wondertwin-ai/storefront/internal/money"
)

func (a *app) cmdCart(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sf cart add|rm|qty|inc|dec|list|clear")
	}
	c := a.cart()

	switch args[0] {
	case "add":
		return a.cartAdd(c, args[1:])
	case "rm", "remove":
		if len(args) < 2 {
			return fmt.Errorf("usage: sf cart rm <product-id>...")
		}
		c.RemoveItems(args[1:]...)
	case "qty":
		if len(args) != 3 {
			return fmt.Errorf("usage: sf cart qty <product-id> <n>")
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		if !c.Contains(args[1]) {
			return fmt.Errorf("%s is not in the cart", args[1])
		}
		c.UpdateQuantity(args[1], n)
	case "inc", "dec":
		if len(args) != 2 {
			return fmt.Errorf("usage: sf cart %s <product-id>", args[0])
		}
		if !c.Contains(args[1]) {
			return fmt.Errorf("%s is not in the cart", args[1])
		}
		if args[0] == "inc" {
			c.IncrementQuantity(args[1])
		} else {
			c.DecrementQuantity(args[1])
		}
	case "list", "ls":
	case "clear":
		c.Clear()
	default:
		return fmt.Errorf("unknown cart command %q", args[0])
	}

	a.printCart(c.Summary())
	return nil
}

func (a *app) cartAdd(c *cart.Store, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: sf cart add <product-id> [qty]")
	}
	qty := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		qty = n
	}

	ctx, cancel := a.context()
	defer cancel()
	p, err := a.client(nil).GetProduct(ctx, args[0])
	if err != nil {
		return fmt.Errorf("looking up %s: %w", args[0], err)
	}
	c.AddItem(p, qty)
	a.printf("Added %s x%d\n\n", p.Title, qty)
	a.printCart(c.Summary())
	return nil
}

func (a *app) printCart(s cart.Summary) {
	if s.ItemCount == 0 {
		a.printf("Cart is empty\n")
		return
	}
	for _, g := range s.Groups {
		a.printf("%s (%s)\n", g.StoreName, g.Color.Name)
		for _, l := range g.Items {
			a.printf("  %-20s %-32s %3d x %10s\n", l.Product.ID, l.Product.Title, l.Quantity, money.Format(l.Product.Price))
		}
		a.printf("  %-57s %10s\n", "subtotal", money.Format(g.TotalPrice))
	}
	a.printf("\n%d item(s) from %d store(s), total %s", s.ItemCount, s.StoreCount, money.Format(s.TotalPrice))
	if s.TotalSavings > 0 {
		a.printf(", you save %s", money.Format(s.TotalSavings))
	}
	a.printf("\n")
}
