package router

const (
	RouteFAQ       = "faq"
	RouteSQL       = "sql"
	RouteSmallTalk = "small_talk"
)

// DefaultRoutes is the built-in utterance corpus. Registration order is
// faq, sql, small_talk, which is also the tie-break order.
func DefaultRoutes() []Route {
	return []Route{
		{
			Name: RouteFAQ,
			Utterances: []string{
				"What is the return policy of the products?",
				"Do I get discount with the HDFC credit card?",
				"How can I track my order?",
				"What payment methods are accepted?",
				"How long does it take to process a refund?",
				"Can I cancel my order after placing it?",
				"Do you offer cash on delivery?",
				"How do I exchange a product for a different size?",
				"What are the shipping charges?",
				"How do I contact customer support?",
			},
		},
		{
			Name: RouteSQL,
			Utterances: []string{
				"I want to buy nike shoes that have 50% discount.",
				"Are there any shoes under Rs. 3000?",
				"Do you have formal shoes in size 9?",
				"Are there any Puma shoes on sale?",
				"What is the price of puma running shoes?",
				"Show me the top rated sports shoes.",
				"List Adidas shoes with rating above 4.",
				"Which sneakers have the highest discount?",
				"Find me running shoes between Rs. 1000 and Rs. 2000.",
				"What are the cheapest Campus shoes available?",
			},
		},
		{
			Name: RouteSmallTalk,
			Utterances: []string{
				"Hello",
				"Hi there",
				"How are you?",
				"What is your name?",
				"Are you a robot?",
				"Tell me a joke",
				"Good morning",
				"Thanks for your help",
				"What can you do?",
				"Who created you?",
			},
		},
	}
}
