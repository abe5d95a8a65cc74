package services

import (
	"fmt"
	"strings"
	"time"

	"streetwear-store/internal/models"
)

const sellerPersona = `You are "Drip", the street-smart sales assistant of an Indian streetwear store.
You haggle with the shopper over a discount on their current cart. Keep replies short (2-4 sentences),
playful and confident, and always quote amounts in rupees exactly as given in the context block.
Never offer more than offer_amount. Never promise a discount above max_discount.`

// BuildDialoguePrompt собирает запрос к генератору диалога: персона, машинный блок контекста,
// история переписки и детерминированный ответ на случай отказа генератора.
func BuildDialoguePrompt(turn *models.NegotiationTurn, messages []models.ChatMessage) *models.DialoguePrompt {
	var sb strings.Builder
	sb.WriteString(sellerPersona)
	sb.WriteString("\n\n")
	sb.WriteString(negotiationContext(turn))
	sb.WriteString("\n")
	sb.WriteString(turnInstructions(turn))

	history, message := splitConversation(messages)
	return &models.DialoguePrompt{
		System:   sb.String(),
		History:  history,
		Message:  message,
		Fallback: FallbackReply(turn),
	}
}

func negotiationContext(turn *models.NegotiationTurn) string {
	lines := []string{
		"[NEGOTIATION_CONTEXT]",
		fmt.Sprintf("round=%d", turn.Round),
		fmt.Sprintf("state=%s", turn.State),
		fmt.Sprintf("authenticated=%t", turn.Authenticated),
		fmt.Sprintf("cart_total=%s", turn.CartTotal.StringFixed(2)),
		fmt.Sprintf("discount_rule=%s", turn.Bound.Type),
		fmt.Sprintf("max_discount=%s", turn.Bound.MaxDiscount.StringFixed(2)),
		fmt.Sprintf("offer_amount=%s", turn.OfferAmount.StringFixed(0)),
		fmt.Sprintf("final_coupon_issued=%t", turn.Coupon != nil),
	}
	if turn.Coupon != nil {
		lines = append(lines,
			fmt.Sprintf("coupon_code=%s", turn.Coupon.Code),
			fmt.Sprintf("coupon_discount=%s", turn.Coupon.Discount.StringFixed(0)),
			fmt.Sprintf("coupon_expires_at=%s", turn.Coupon.ExpiresAt.UTC().Format(time.RFC3339)),
		)
	}
	lines = append(lines, "[/NEGOTIATION_CONTEXT]")
	return strings.Join(lines, "\n")
}

func turnInstructions(turn *models.NegotiationTurn) string {
	if turn.Coupon != nil {
		return fmt.Sprintf("Tell the shopper the deal is closed: code %s gives ₹%s off and expires in 5 minutes. "+
			"Use this exact code and no other.", turn.Coupon.Code, turn.Coupon.Discount.StringFixed(0))
	}

	var sb strings.Builder
	sb.WriteString("No coupon code exists for this conversation. Never invent, guess or spell out a coupon code. ")
	switch {
	case turn.State == models.StateGreeting:
		sb.WriteString("Greet the shopper and open with offer_amount.")
	case turn.Round >= FinalRound && !turn.Authenticated:
		sb.WriteString("offer_amount is your best figure, but a code can only be issued to signed-in shoppers. Ask them to log in.")
	default:
		sb.WriteString("Counter with offer_amount and hint that persistence may pay off.")
	}
	return sb.String()
}

// FallbackReply строит ответ без генератора, только из чисел хода.
func FallbackReply(turn *models.NegotiationTurn) string {
	offer := turn.OfferAmount.StringFixed(0)
	switch {
	case turn.Coupon != nil && turn.State == models.StateTerminated:
		return fmt.Sprintf("You already locked in your deal! Code %s gives you ₹%s off. Use it before it expires.",
			turn.Coupon.Code, turn.Coupon.Discount.StringFixed(0))
	case turn.Coupon != nil:
		return fmt.Sprintf("Deal! Use code %s for ₹%s off your cart. It expires in 5 minutes, so check out fast.",
			turn.Coupon.Code, turn.Coupon.Discount.StringFixed(0))
	case turn.State == models.StateGreeting:
		return fmt.Sprintf("Hey! Welcome to the bargain counter. For this cart I can start you at ₹%s off. Make me an offer!", offer)
	case turn.Round >= FinalRound && !turn.Authenticated:
		return fmt.Sprintf("₹%s off is my best figure, but I can only lock it into a code for signed-in shoppers. Log in and ask again!", offer)
	default:
		return fmt.Sprintf("I can stretch to ₹%s off on this cart. Keep going and I might do a little better.", offer)
	}
}

// splitConversation отделяет последнюю реплику пользователя от истории.
func splitConversation(messages []models.ChatMessage) ([]models.ChatMessage, string) {
	history := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		history = append(history, models.ChatMessage{Role: m.Role, Content: content})
	}

	if n := len(history); n > 0 && history[n-1].Role == "user" {
		return history[:n-1], history[n-1].Content
	}
	return history, "Hi! Can I get a discount on my cart?"
}
