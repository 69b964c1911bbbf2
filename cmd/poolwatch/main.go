// Command poolwatch lists and watches the compute nodes of a pool through
// viewcache views.
package main

func main() {
	Execute()
}
