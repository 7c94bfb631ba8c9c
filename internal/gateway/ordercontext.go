package gateway

import (
	"context"

	"bits-gateway/internal/payment"
)

// orderContext collects what the provider needs to show the order content:
// the order id and its lines with catalog metadata and issued download links.
// Lookup failures are logged and leave the affected part out.
func (p *Plugin) orderContext(ctx context.Context, data payment.PaymentData) map[string]any {
	if data.OrderID == nil {
		return nil
	}
	extra := map[string]any{"orderId": *data.OrderID}

	if p.deps.Orders == nil {
		return extra
	}

	lines, err := p.deps.Orders.GetOrderLines(ctx, *data.OrderID)
	if err != nil {
		p.logger.WarnContext(ctx, "Error fetching order lines for provider context", "error", err)
		return extra
	}

	items := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		item := map[string]any{
			"id":          line.ID,
			"productName": line.ProductName,
			"variantName": line.VariantName,
			"sku":         line.ProductSKU,
			"quantity":    line.Quantity,
			"unitPrice":   line.UnitPrice.InexactFloat64(),
		}

		if metadata := p.lineMetadata(ctx, line); len(metadata) > 0 {
			item["metadata"] = metadata
		}

		if p.deps.Links != nil {
			url, ok, err := p.deps.Links.DownloadURL(ctx, line.ID)
			if err != nil {
				p.logger.WarnContext(ctx, "Error fetching download link", "lineId", line.ID, "error", err)
			} else if ok {
				item["downloadUrl"] = url
			}
		}

		items = append(items, item)
	}
	extra["lines"] = items

	return extra
}

// lineMetadata merges product type, product and variant metadata, later
// owners overriding earlier ones.
func (p *Plugin) lineMetadata(ctx context.Context, line payment.OrderLine) map[string]string {
	if p.deps.Catalog == nil {
		return nil
	}

	owners := []struct {
		owner payment.MetadataOwner
		id    *int64
	}{
		{payment.OwnerProductType, line.ProductTypeID},
		{payment.OwnerProduct, line.ProductID},
		{payment.OwnerVariant, line.VariantID},
	}

	merged := map[string]string{}
	for _, o := range owners {
		if o.id == nil {
			continue
		}
		metadata, err := p.deps.Catalog.GetMetadata(ctx, o.owner, *o.id)
		if err != nil {
			p.logger.WarnContext(ctx, "Error fetching catalog metadata", "owner", o.owner, "ownerId", *o.id, "error", err)
			continue
		}
		for k, v := range metadata {
			merged[k] = v
		}
	}
	return merged
}
