package sim

import "fmt"

// Address is a two-part UI component address (group, child). It is only
// meaningful for the frame it was read in.
type Address struct {
	Group int `yaml:"group" json:"group"`
	Child int `yaml:"child" json:"child"`
}

// Packed returns the single-int form used on the wire (group<<16 | child).
func (a Address) Packed() int { return a.Group<<16 | a.Child }

func (a Address) String() string { return fmt.Sprintf("%d:%d", a.Group, a.Child) }

// Unpack splits a packed component id.
func Unpack(id int) Address {
	return Address{Group: id >> 16, Child: id & 0xffff}
}

type Widget struct {
	Address  Address
	Hidden   bool
	Text     string
	Children []Widget
}

// ID returns the packed component id of the widget.
func (w Widget) ID() int { return w.Address.Packed() }

func (w Widget) Visible() bool { return !w.Hidden }
