package commerce

const productFields = `
            id
            name
            slug
            image { sourceUrl }
            ... on SimpleProduct { price }
            ... on VariableProduct { price }`

const productsQuery = `
query GetProducts($category: String, $first: Int, $after: String, $last: Int, $before: String) {
  products(where: { category: $category }, first: $first, after: $after, last: $last, before: $before) {
    nodes {` + productFields + `
    }
    pageInfo { hasNextPage hasPreviousPage startCursor endCursor }
  }
}`

const categoriesQuery = `
query GetCategories($first: Int) {
  productCategories(first: $first) {
    nodes { id name slug }
  }
}`

const productQuery = `
query GetProductBySlug($slug: ID!) {
  product(id: $slug, idType: SLUG) {
    id
    databaseId
    name
    slug
    description
    shortDescription
    image { sourceUrl }
    galleryImages { nodes { sourceUrl } }
    ... on SimpleProduct {
      price
      attributes { nodes { name options } }
    }
    ... on VariableProduct {
      price
      attributes { nodes { name options } }
    }
    reviews(first: 10) {
      nodes { id author { node { name } } content date }
    }
    related(first: 4) {
      nodes {` + productFields + `
      }
    }
  }
}`

const checkoutDataQuery = `
query GetCheckoutData {
  cart(recalculateTotals: true) {
    contents { nodes { product { node { name } } quantity total } }
    subtotal total shippingTotal discountTotal
    availableShippingMethods { rates { id label cost } }
  }
  paymentGateways { nodes { id title } }
}`

const updateCustomerMutation = `
mutation UpdateCustomer($input: UpdateCustomerInput!) {
  updateCustomer(input: $input) { customer { id } }
}`

const applyCouponMutation = `
mutation ApplyCoupon($code: String!) {
  applyCoupon(input: { code: $code }) { cart { total discountTotal } }
}`

const checkoutMutation = `
mutation Checkout($input: CheckoutInput!) {
  checkout(input: $input) { result order { orderNumber } }
}`

const addToCartMutation = `
mutation AddToCart($productId: Int!, $quantity: Int) {
  addToCart(input: { productId: $productId, quantity: $quantity }) {
    cartItem { key quantity }
  }
}`
